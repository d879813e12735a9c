// Package router dispatches stage tasks to AI providers with automatic
// failover. Candidate order is a deterministic, configuration-driven
// priority list: no load balancing and no health scoring, because the
// pipeline's safety properties depend on predictable routing.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/config"
	"github.com/dermapipe/dermapipe/pkg/provider"
	"github.com/dermapipe/dermapipe/pkg/store"
)

// AIResult is the router's verdict for one task.
type AIResult struct {
	Success    bool
	Data       *provider.Output
	Error      string
	Provider   string
	DurationMs int64

	// FallbackUsed is true iff at least one earlier candidate was
	// attempted and failed before the final outcome.
	FallbackUsed bool

	// Retryable is set on failure when at least one candidate failed
	// transiently (timeout, rate limit, 5xx). A chain that failed only
	// permanently will fail the same way again, so whole-chain retry
	// skips it.
	Retryable bool
}

// Factory constructs a provider by name. Returning an error marks the
// provider unavailable for this router; it is skipped, not failed.
type Factory func(name string) (provider.Provider, error)

// Router walks the configured candidate chain per task. The provider
// cache is the only shared mutable state and is mutex-guarded; providers
// themselves must be safe for concurrent use.
type Router struct {
	routing *config.RoutingConfig
	sink    store.Sink
	factory Factory
	timeout time.Duration
	log     *logrus.Entry
	sleep   func(context.Context, time.Duration) error

	mu        sync.Mutex
	providers map[string]provider.Provider
}

// Option configures a Router.
type Option func(*Router)

// WithFactory overrides provider construction.
func WithFactory(f Factory) Option {
	return func(r *Router) { r.factory = f }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithSleep overrides the retry backoff sleeper.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(r *Router) { r.sleep = fn }
}

// WithProvider pre-seeds the provider cache.
func WithProvider(name string, p provider.Provider) Option {
	return func(r *Router) { r.providers[name] = p }
}

// New creates a Router over cfg's routing rules, logging every attempt to
// sink's AI-call facility.
func New(cfg *config.Config, sink store.Sink, opts ...Option) *Router {
	if sink == nil {
		sink = store.Nop{}
	}
	r := &Router{
		routing:   cfg.Routing,
		sink:      sink,
		factory:   DefaultFactory(cfg),
		timeout:   cfg.RequestTimeout,
		log:       logrus.WithField("component", "router"),
		sleep:     sleepWithContext,
		providers: make(map[string]provider.Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultFactory builds the standard providers from application config.
func DefaultFactory(cfg *config.Config) Factory {
	return func(name string) (provider.Provider, error) {
		switch name {
		case "internal":
			return provider.NewInternal(), nil
		case "openrouter":
			return provider.NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterModel)
		case "gemini":
			return provider.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
		case "groq":
			return provider.NewGroq(cfg.GroqAPIKey, cfg.GroqModel)
		case "claude":
			return provider.NewClaude(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		case "mock":
			return provider.NewMock(), nil
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
}

// Route walks the task's candidate chain in order and returns the first
// success, or an aggregate failure once the chain is exhausted.
func (r *Router) Route(ctx context.Context, task provider.Task, input provider.Input, diagnosisID string) AIResult {
	if !task.Valid() {
		return AIResult{Success: false, Error: fmt.Sprintf("unknown task %q", task)}
	}
	if diagnosisID == "" {
		diagnosisID = "unknown"
	}

	route := r.routing.Route(task.String())
	chain := make([]string, 0, len(route.Primary)+len(route.Fallback))
	chain = append(chain, route.Primary...)
	chain = append(chain, route.Fallback...)

	fallbackUsed := false
	retryable := false

	for _, name := range chain {
		if !r.routing.ProviderEnabled(name) {
			continue
		}
		p, err := r.provider(name)
		if err != nil {
			// Missing credentials or unknown name: unavailable, not failed.
			r.log.WithFields(logrus.Fields{"provider": name, "task": task}).
				WithError(err).Debug("provider unavailable")
			continue
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := p.Execute(callCtx, task, input)
		cancel()
		durationMs := time.Since(start).Milliseconds()

		if err != nil {
			r.log.WithFields(logrus.Fields{
				"diagnosis_id": diagnosisID,
				"provider":     name,
				"task":         task,
				"duration_ms":  durationMs,
			}).WithError(err).Warn("provider failed")

			r.recordCall(diagnosisID, task, name, false, durationMs, err.Error())
			fallbackUsed = true
			if provider.IsTransient(err) {
				retryable = true
			}
			continue
		}

		r.recordCall(diagnosisID, task, name, true, durationMs, "")

		return AIResult{
			Success:      true,
			Data:         out,
			Provider:     name,
			DurationMs:   durationMs,
			FallbackUsed: fallbackUsed,
		}
	}

	r.log.WithFields(logrus.Fields{"diagnosis_id": diagnosisID, "task": task}).
		Error("all providers failed")

	return AIResult{
		Success:      false,
		Error:        fmt.Sprintf("All AI providers failed for %s", task),
		FallbackUsed: true,
		Retryable:    retryable,
	}
}

// RouteWithRetry repeats Route on whole-chain failure, up to maxRetries
// attempts (0 means the configured default). Between attempt k and k+1 it
// sleeps 0.5*2^k seconds (or the flat configured delay when exponential
// backoff is disabled); there is no sleep after the final attempt. A
// chain whose failures were all permanent is not retried. The last
// AIResult is returned regardless of outcome.
func (r *Router) RouteWithRetry(ctx context.Context, task provider.Task, input provider.Input, diagnosisID string, maxRetries int) AIResult {
	retries := maxRetries
	if retries <= 0 {
		retries = r.routing.Fallback.MaxRetries
	}
	if retries <= 0 {
		retries = 3
	}

	var result AIResult
	for attempt := 0; attempt < retries; attempt++ {
		result = r.Route(ctx, task, input, diagnosisID)
		if result.Success {
			return result
		}
		if !result.Retryable {
			return result
		}
		if attempt < retries-1 {
			if err := r.sleep(ctx, r.backoffDelay(attempt)); err != nil {
				return result
			}
		}
	}
	return result
}

func (r *Router) backoffDelay(attempt int) time.Duration {
	if r.routing.ExponentialBackoffEnabled() {
		return 500 * time.Millisecond << uint(attempt)
	}
	return time.Duration(r.routing.Fallback.RetryDelayMs) * time.Millisecond
}

// provider returns the cached instance for name, constructing it on first
// use. Construction failures are not cached so a provider configured
// later (config reload into a new router) is retried naturally.
func (r *Router) provider(name string) (provider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	p, err := r.factory(name)
	if err != nil {
		return nil, err
	}
	r.providers[name] = p
	return p, nil
}

func (r *Router) recordCall(diagnosisID string, task provider.Task, name string, success bool, durationMs int64, errMsg string) {
	if err := r.sink.RecordAICall(diagnosisID, task.String(), name, success, durationMs, errMsg); err != nil {
		r.log.WithError(err).Debug("record ai call failed")
	}
}

// ProviderStatus describes one configured provider for diagnostics.
type ProviderStatus struct {
	Name      string
	Priority  int
	Enabled   bool
	Available bool
}

// Providers reports every configured provider in priority order.
func (r *Router) Providers() []ProviderStatus {
	var out []ProviderStatus
	for name, pc := range r.routing.Providers {
		_, err := r.provider(name)
		out = append(out, ProviderStatus{
			Name:      name,
			Priority:  pc.Priority,
			Enabled:   pc.Enabled,
			Available: err == nil,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Routing exposes the router's routing rules (read-only by convention).
func (r *Router) Routing() *config.RoutingConfig {
	return r.routing
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
