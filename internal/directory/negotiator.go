package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Prober checks that a transport completes its handshake.
type Prober interface {
	Probe(ctx context.Context, cfg TransportConfig) error
}

// ProbeFunc adapts a function into a Prober.
type ProbeFunc func(ctx context.Context, cfg TransportConfig) error

func (f ProbeFunc) Probe(ctx context.Context, cfg TransportConfig) error {
	return f(ctx, cfg)
}

// DefaultNegotiationTimeout bounds a negotiation across all candidates.
const DefaultNegotiationTimeout = 30 * time.Second

// Negotiator picks the strongest transport the directory accepts and caches it.
type Negotiator struct {
	prober      Prober
	cache       *TransportCache
	trustAnchor string
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *Metrics
	timeout     time.Duration

	group         singleflight.Group
	plainWarnOnce sync.Once
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithCache injects the transport cache, letting callers share or inspect it.
func WithCache(cache *TransportCache) NegotiatorOption {
	return func(n *Negotiator) {
		if cache != nil {
			n.cache = cache
		}
	}
}

// WithTrustAnchor sets the CA bundle tried first under PolicyRequired.
func WithTrustAnchor(path string) NegotiatorOption {
	return func(n *Negotiator) {
		n.trustAnchor = path
	}
}

func WithLogger(logger *slog.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		n.logger = logger
	}
}

func WithMetrics(m *Metrics) NegotiatorOption {
	return func(n *Negotiator) {
		n.metrics = m
	}
}

// WithNegotiationTimeout bounds one shared negotiation, independent of the
// callers waiting on it. The default is DefaultNegotiationTimeout.
func WithNegotiationTimeout(d time.Duration) NegotiatorOption {
	return func(n *Negotiator) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// NewNegotiator builds a negotiator around prober.
func NewNegotiator(prober Prober, opts ...NegotiatorOption) (*Negotiator, error) {
	if prober == nil {
		return nil, errors.New("directory prober is required")
	}
	n := &Negotiator{
		prober:  prober,
		cache:   NewTransportCache(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("onesite/directory"),
		timeout: DefaultNegotiationTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Cache exposes the transport cache.
func (n *Negotiator) Cache() *TransportCache {
	return n.cache
}

// Resolve returns the transport for (host, port, policy), probing candidates
// in order on first use. Concurrent first calls for the same key share one
// negotiation, which runs detached from any single caller: a caller whose
// context ends gets its context error while the others keep waiting and the
// result is still cached. Under PolicyRequired a plaintext transport is never
// returned.
func (n *Negotiator) Resolve(ctx context.Context, host string, port int, policy Policy) (TransportConfig, error) {
	if cfg, ok := n.cache.Get(host, port, policy); ok {
		return cfg, nil
	}
	if err := ctx.Err(); err != nil {
		return TransportConfig{}, err
	}

	key := fmt.Sprintf("%s|%d|%s", host, port, policy)
	ch := n.group.DoChan(key, func() (any, error) {
		if cfg, ok := n.cache.Get(host, port, policy); ok {
			return cfg, nil
		}
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		cfg, err := n.negotiate(nctx, host, port, policy)
		if err != nil {
			return TransportConfig{}, err
		}
		return n.cache.Store(host, port, policy, cfg), nil
	})

	select {
	case <-ctx.Done():
		return TransportConfig{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return TransportConfig{}, res.Err
		}
		return res.Val.(TransportConfig), nil
	}
}

// Candidates lists the transports tried for policy, strongest first.
func (n *Negotiator) Candidates(host string, port int, policy Policy) []TransportConfig {
	if policy == PolicyDisabled {
		return []TransportConfig{{Host: host, Port: port, Mode: ModePlain}}
	}
	candidates := make([]TransportConfig, 0, 3)
	if n.trustAnchor != "" && readable(n.trustAnchor) {
		candidates = append(candidates, TransportConfig{Host: host, Port: port, Mode: ModeTLSStrict, TrustAnchor: n.trustAnchor})
	}
	return append(candidates,
		TransportConfig{Host: host, Port: port, Mode: ModeTLSStrict},
		TransportConfig{Host: host, Port: port, Mode: ModeTLSRelaxed},
	)
}

func (n *Negotiator) negotiate(ctx context.Context, host string, port int, policy Policy) (TransportConfig, error) {
	ctx, span := n.tracer.Start(ctx, "directory.Negotiate", trace.WithAttributes(
		attribute.String("directory.host", host),
		attribute.String("directory.port", strconv.Itoa(port)),
		attribute.String("directory.policy", string(policy)),
	))
	defer span.End()

	if policy == PolicyDisabled {
		n.plainWarnOnce.Do(func() {
			n.logger.WarnContext(ctx, "directory transport security disabled; credentials travel in plaintext",
				"host", host,
				"port", port,
			)
		})
	}

	interrupted := func(err error) (TransportConfig, error) {
		span.SetStatus(codes.Error, "interrupted")
		n.logger.WarnContext(ctx, "directory transport negotiation interrupted",
			"host", host,
			"port", port,
			"error", err,
		)
		return TransportConfig{}, err
	}

	var errs []error
	for _, candidate := range n.Candidates(host, port, policy) {
		if err := ctx.Err(); err != nil {
			return interrupted(err)
		}
		err := n.prober.Probe(ctx, candidate)
		n.metrics.observeProbe(candidate.Mode, err)
		if err != nil {
			n.logger.DebugContext(ctx, "directory transport candidate rejected",
				"candidate", candidate.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", candidate.Mode, err))
			continue
		}
		if candidate.Mode == ModeTLSRelaxed {
			n.logger.WarnContext(ctx, "directory transport degraded: certificate verification disabled",
				"host", host,
				"port", port,
			)
		} else {
			n.logger.InfoContext(ctx, "directory transport negotiated",
				"transport", candidate.String(),
			)
		}
		span.SetAttributes(attribute.String("directory.mode", string(candidate.Mode)))
		return candidate, nil
	}

	// A deadline hit during the last candidate is not a rejection.
	if err := ctx.Err(); err != nil {
		return interrupted(err)
	}
	span.SetStatus(codes.Error, "no transport")
	n.logger.ErrorContext(ctx, "directory transport negotiation failed",
		"host", host,
		"port", port,
		"policy", string(policy),
		"error", errors.Join(errs...),
	)
	return TransportConfig{}, fmt.Errorf("%w: %w", ErrTransportUnavailable, errors.Join(errs...))
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
