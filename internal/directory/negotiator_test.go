package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProber struct {
	mu     sync.Mutex
	calls  atomic.Int32
	tried  []TransportConfig
	accept func(TransportConfig) bool
	delay  time.Duration
}

func (p *countingProber) Probe(_ context.Context, cfg TransportConfig) error {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.tried = append(p.tried, cfg)
	p.mu.Unlock()
	if p.accept(cfg) {
		return nil
	}
	return errors.New("handshake failed")
}

func acceptMode(modes ...Mode) func(TransportConfig) bool {
	return func(cfg TransportConfig) bool {
		for _, m := range modes {
			if cfg.Mode == m && cfg.TrustAnchor == "" {
				return true
			}
		}
		return false
	}
}

func TestNegotiator_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("negotiation is cached after the first probe", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModeTLSStrict)}
		n, err := NewNegotiator(prober, WithMetrics(NewMetrics(prometheus.NewRegistry())))
		require.NoError(t, err)

		first, err := n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.NoError(t, err)
		second, err := n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.NoError(t, err)

		assert.Equal(t, ModeTLSStrict, first.Mode)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), prober.calls.Load())
	})

	t.Run("falls back to relaxed TLS when verification fails", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModeTLSRelaxed)}
		n, err := NewNegotiator(prober)
		require.NoError(t, err)

		cfg, err := n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.NoError(t, err)
		assert.Equal(t, ModeTLSRelaxed, cfg.Mode)
		assert.Equal(t, int32(2), prober.calls.Load())
	})

	t.Run("readable trust anchor is tried first", func(t *testing.T) {
		ca := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(ca, []byte("-----BEGIN CERTIFICATE-----\n"), 0o600))
		prober := &countingProber{accept: func(cfg TransportConfig) bool { return cfg.TrustAnchor == ca }}
		n, err := NewNegotiator(prober, WithTrustAnchor(ca))
		require.NoError(t, err)

		cfg, err := n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.NoError(t, err)
		assert.Equal(t, ModeTLSStrict, cfg.Mode)
		assert.Equal(t, ca, cfg.TrustAnchor)
	})

	t.Run("unreadable trust anchor is skipped", func(t *testing.T) {
		n, err := NewNegotiator(&countingProber{accept: acceptMode()}, WithTrustAnchor("/nonexistent/ca.pem"))
		require.NoError(t, err)

		candidates := n.Candidates("dc01", 636, PolicyRequired)
		require.Len(t, candidates, 2)
		assert.Equal(t, ModeTLSStrict, candidates[0].Mode)
		assert.Empty(t, candidates[0].TrustAnchor)
		assert.Equal(t, ModeTLSRelaxed, candidates[1].Mode)
	})

	t.Run("required policy never falls back to plaintext", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModePlain)}
		n, err := NewNegotiator(prober)
		require.NoError(t, err)

		_, err = n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.ErrorIs(t, err, ErrTransportUnavailable)
		for _, tried := range prober.tried {
			assert.NotEqual(t, ModePlain, tried.Mode)
		}
		assert.Zero(t, n.Cache().Len())

		_, err = n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.ErrorIs(t, err, ErrTransportUnavailable)
		assert.Equal(t, int32(4), prober.calls.Load(), "failures are not cached")
	})

	t.Run("disabled policy uses plaintext", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModePlain)}
		n, err := NewNegotiator(prober)
		require.NoError(t, err)

		cfg, err := n.Resolve(ctx, "dc01", 389, PolicyDisabled)
		require.NoError(t, err)
		assert.Equal(t, ModePlain, cfg.Mode)
		assert.Equal(t, "ldap://dc01:389", cfg.URL())
	})

	t.Run("policies are cached independently", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModePlain, ModeTLSStrict)}
		cache := NewTransportCache()
		n, err := NewNegotiator(prober, WithCache(cache))
		require.NoError(t, err)

		_, err = n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.NoError(t, err)
		_, err = n.Resolve(ctx, "dc01", 636, PolicyDisabled)
		require.NoError(t, err)
		assert.Equal(t, 2, cache.Len())
	})

	t.Run("concurrent first calls share one negotiation", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModeTLSStrict), delay: 20 * time.Millisecond}
		n, err := NewNegotiator(prober)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]TransportConfig, 50)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cfg, err := n.Resolve(ctx, "dc01", 636, PolicyRequired)
				assert.NoError(t, err)
				results[i] = cfg
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), prober.calls.Load())
		for _, r := range results {
			assert.Equal(t, ModeTLSStrict, r.Mode)
		}
	})

	t.Run("caller deadline does not cancel the shared negotiation", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModeTLSStrict), delay: 100 * time.Millisecond}
		n, err := NewNegotiator(prober)
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		shortErr := make(chan error, 1)
		go func() {
			_, err := n.Resolve(short, "dc01", 636, PolicyRequired)
			shortErr <- err
		}()
		require.Eventually(t, func() bool { return prober.calls.Load() == 1 }, time.Second, time.Millisecond)

		cfg, err := n.Resolve(ctx, "dc01", 636, PolicyRequired)
		require.NoError(t, err)
		assert.Equal(t, ModeTLSStrict, cfg.Mode)
		assert.ErrorIs(t, <-shortErr, context.DeadlineExceeded)
		assert.Equal(t, int32(1), prober.calls.Load())
		assert.Equal(t, 1, n.Cache().Len())
	})

	t.Run("ended context is not a transport failure", func(t *testing.T) {
		prober := &countingProber{accept: acceptMode(ModeTLSStrict)}
		n, err := NewNegotiator(prober)
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = n.Resolve(canceled, "dc01", 636, PolicyRequired)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTransportUnavailable)
		assert.Zero(t, prober.calls.Load())
	})

	t.Run("negotiation timeout stops on a hung directory", func(t *testing.T) {
		hung := ProbeFunc(func(ctx context.Context, _ TransportConfig) error {
			<-ctx.Done()
			return ctx.Err()
		})
		n, err := NewNegotiator(hung, WithNegotiationTimeout(30*time.Millisecond))
		require.NoError(t, err)

		_, err = n.Resolve(ctx, "dc01", 636, PolicyRequired)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrTransportUnavailable)
		assert.Zero(t, n.Cache().Len())
	})

	t.Run("prober is required", func(t *testing.T) {
		_, err := NewNegotiator(nil)
		assert.Error(t, err)
	})
}

func TestTransportCache_FirstWriterWins(t *testing.T) {
	cache := NewTransportCache()
	strict := TransportConfig{Host: "dc01", Port: 636, Mode: ModeTLSStrict}
	relaxed := TransportConfig{Host: "dc01", Port: 636, Mode: ModeTLSRelaxed}

	assert.Equal(t, strict, cache.Store("dc01", 636, PolicyRequired, strict))
	assert.Equal(t, strict, cache.Store("dc01", 636, PolicyRequired, relaxed))

	got, ok := cache.Get("dc01", 636, PolicyRequired)
	require.True(t, ok)
	assert.Equal(t, strict, got)

	_, ok = cache.Get("dc01", 389, PolicyRequired)
	assert.False(t, ok)
}

func TestGroupNames(t *testing.T) {
	groups := GroupNames([]string{
		"CN=Administradores,OU=Grupos,DC=corp,DC=local",
		"CN=Supervisores\\, Norte,OU=Grupos,DC=corp,DC=local",
		"cn=Administradores,ou=Otros,dc=corp,dc=local",
		"",
		"Operadores",
	})
	assert.Equal(t, []string{"Administradores", "Supervisores, Norte", "Operadores"}, groups)
}
