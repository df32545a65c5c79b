package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status of a component or the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Component is the result of one check.
type Component struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
}

// Report aggregates component results.
type Report struct {
	Status     Status       `json:"status"`
	Components []*Component `json:"components"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Healthy reports whether every component passed.
func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Component returns the named component result, or nil.
func (r *Report) Component(name string) *Component {
	for _, c := range r.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Checker is a single dependency probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function into a Checker.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc names fn as a Checker.
func NewCheckFunc(name string, fn func(context.Context) error) CheckFunc {
	return CheckFunc{name: name, fn: fn}
}

func (c CheckFunc) Name() string                    { return c.name }
func (c CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// Registry runs registered checks in parallel.
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a checker. Nil checkers are ignored.
func (h *Registry) Register(checker Checker) {
	if checker == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checker)
}

// Check runs all checks and aggregates the result.
func (h *Registry) Check(ctx context.Context) *Report {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	components := make([]*Component, len(checkers))
	var wg sync.WaitGroup
	for i, chk := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := chk.Check(ctx)
			c := &Component{
				Name:    chk.Name(),
				Status:  StatusHealthy,
				Latency: time.Since(start),
			}
			if err != nil {
				c.Status = StatusUnhealthy
				c.Error = err.Error()
			}
			components[i] = c
		}()
	}
	wg.Wait()

	return &Report{
		Status:     overall(components),
		Components: components,
		Timestamp:  time.Now(),
	}
}

// Handler serves the aggregated report; unhealthy maps to 503.
func (h *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := h.Check(ctx)
		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// Liveness always answers 200 while the process serves HTTP.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"alive"}`))
}

func overall(components []*Component) Status {
	degraded := false
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}
