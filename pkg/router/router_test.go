package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dermapipe/dermapipe/pkg/config"
	"github.com/dermapipe/dermapipe/pkg/provider"
	"github.com/dermapipe/dermapipe/pkg/store"
)

func testConfig(routing *config.RoutingConfig) *config.Config {
	return &config.Config{
		RequestTimeout: 5 * time.Second,
		Routing:        routing,
	}
}

func routing(primary, fallback []string) *config.RoutingConfig {
	cfg := &config.RoutingConfig{
		Providers: map[string]config.ProviderConfig{},
		StageRouting: map[string]config.StageRoute{
			"stage1_normal_abnormal": {Primary: primary, Fallback: fallback},
		},
	}
	for i, name := range append(append([]string{}, primary...), fallback...) {
		cfg.Providers[name] = config.ProviderConfig{Enabled: true, Priority: i + 1}
	}
	return cfg
}

func TestRoutePrimarySuccess(t *testing.T) {
	primary := provider.NewMock()
	fallback := provider.NewMock()

	r := New(testConfig(routing([]string{"a"}, []string{"b"})), nil,
		WithProvider("a", primary),
		WithProvider("b", fallback),
	)

	result := r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Provider != "a" {
		t.Errorf("expected provider a, got %q", result.Provider)
	}
	if result.FallbackUsed {
		t.Error("primary success must not set FallbackUsed")
	}
	if len(fallback.Calls()) != 0 {
		t.Error("fallback provider should not have been called")
	}
}

func TestRouteFallbackOnFailure(t *testing.T) {
	primary := provider.NewMock().Fail(errors.New("boom"))
	fallback := provider.NewMock()

	r := New(testConfig(routing([]string{"a"}, []string{"b"})), nil,
		WithProvider("a", primary),
		WithProvider("b", fallback),
	)

	result := r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
	if !result.Success {
		t.Fatalf("expected fallback success, got error %q", result.Error)
	}
	if result.Provider != "b" {
		t.Errorf("expected provider b, got %q", result.Provider)
	}
	if !result.FallbackUsed {
		t.Error("fallback success must set FallbackUsed")
	}
}

func TestRouteDisabledProviderSkippedSilently(t *testing.T) {
	cfg := routing([]string{"a"}, []string{"b"})
	cfg.Providers["a"] = config.ProviderConfig{Enabled: false, Priority: 1}

	a := provider.NewMock()
	b := provider.NewMock()

	r := New(testConfig(cfg), nil, WithProvider("a", a), WithProvider("b", b))

	result := r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
	if !result.Success || result.Provider != "b" {
		t.Fatalf("expected success via b, got %+v", result)
	}
	if result.FallbackUsed {
		t.Error("skipping a disabled provider is not a fallback")
	}
	if len(a.Calls()) != 0 {
		t.Error("disabled provider must never be called")
	}
}

func TestRouteUnavailableProviderSkippedSilently(t *testing.T) {
	b := provider.NewMock()
	factory := func(name string) (provider.Provider, error) {
		if name == "a" {
			return nil, provider.ErrNotConfigured
		}
		return b, nil
	}

	r := New(testConfig(routing([]string{"a"}, []string{"b"})), nil, WithFactory(factory))

	result := r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
	if !result.Success || result.Provider != "b" {
		t.Fatalf("expected success via b, got %+v", result)
	}
	if result.FallbackUsed {
		t.Error("an unconfigured provider is skipped, not failed")
	}
}

func TestRouteChainExhausted(t *testing.T) {
	r := New(testConfig(routing([]string{"a"}, []string{"b"})), nil,
		WithProvider("a", provider.NewMock().Fail(errors.New("down"))),
		WithProvider("b", provider.NewMock().Fail(errors.New("down"))),
	)

	result := r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !result.FallbackUsed {
		t.Error("exhausted chain must set FallbackUsed")
	}
	want := "All AI providers failed for stage1_normal_abnormal"
	if result.Error != want {
		t.Errorf("error = %q, want %q", result.Error, want)
	}
}

func TestRouteUnknownTask(t *testing.T) {
	r := New(testConfig(routing([]string{"a"}, nil)), nil,
		WithProvider("a", provider.NewMock()))

	result := r.Route(context.Background(), provider.Task("bogus"), provider.Input{}, "d1")
	if result.Success {
		t.Fatal("expected failure for unknown task")
	}
	if !strings.Contains(result.Error, "bogus") {
		t.Errorf("error should name the task, got %q", result.Error)
	}
}

func TestRouteRecordsAICalls(t *testing.T) {
	sink := &recordingSink{}
	r := New(testConfig(routing([]string{"a"}, []string{"b"})), sink,
		WithProvider("a", provider.NewMock().Fail(errors.New("down"))),
		WithProvider("b", provider.NewMock()),
	)

	r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")

	if len(sink.calls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(sink.calls))
	}
	if sink.calls[0].provider != "a" || sink.calls[0].success {
		t.Errorf("first call should be a failed attempt on a: %+v", sink.calls[0])
	}
	if sink.calls[1].provider != "b" || !sink.calls[1].success {
		t.Errorf("second call should be a success on b: %+v", sink.calls[1])
	}
}

func TestRouteWithRetryBackoff(t *testing.T) {
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	failing := provider.NewMock().Fail(&provider.Error{Temporary: true, Err: errors.New("down")})
	r := New(testConfig(routing([]string{"a"}, nil)), nil,
		WithProvider("a", failing),
		WithSleep(sleep),
	)

	result := r.RouteWithRetry(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1", 3)
	if result.Success {
		t.Fatal("expected failure")
	}

	// 3 attempts, sleeps only between attempts: 0.5s then 1s.
	if len(failing.Calls()) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(failing.Calls()))
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRouteWithRetryFlatDelay(t *testing.T) {
	cfg := routing([]string{"a"}, nil)
	off := false
	cfg.Fallback = config.FallbackBehavior{MaxRetries: 2, RetryDelayMs: 200, ExponentialBackoff: &off}

	var delays []time.Duration
	r := New(testConfig(cfg), nil,
		WithProvider("a", provider.NewMock().Fail(&provider.Error{Status: 503})),
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	r.RouteWithRetry(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1", 0)

	if len(delays) != 1 || delays[0] != 200*time.Millisecond {
		t.Errorf("expected one flat 200ms delay, got %v", delays)
	}
}

func TestRouteWithRetrySkipsPermanentFailure(t *testing.T) {
	failing := provider.NewMock().Fail(errors.New("model rejected the request"))
	r := New(testConfig(routing([]string{"a"}, nil)), nil,
		WithProvider("a", failing),
		WithSleep(func(context.Context, time.Duration) error {
			t.Fatal("permanent failures must not trigger backoff")
			return nil
		}),
	)

	result := r.RouteWithRetry(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1", 3)
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(failing.Calls()) != 1 {
		t.Errorf("expected a single chain pass, got %d", len(failing.Calls()))
	}
}

func TestRouteRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &provider.Error{Status: 429}, true},
		{"transport failure", &provider.Error{Temporary: true, Err: errors.New("connection reset")}, true},
		{"bad request", &provider.Error{Status: 400}, false},
		{"plain error", errors.New("down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testConfig(routing([]string{"a"}, nil)), nil,
				WithProvider("a", provider.NewMock().Fail(tt.err)))

			result := r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
			if result.Success {
				t.Fatal("expected failure")
			}
			if result.Retryable != tt.want {
				t.Errorf("Retryable = %v, want %v", result.Retryable, tt.want)
			}
		})
	}
}

func TestRouteReturnsProviderPayload(t *testing.T) {
	conf := 0.8
	scripted := provider.NewMockWithOutputs("a", map[provider.Task]*provider.Output{
		provider.TaskCategory: {Category: "neoplastic", Subcategory: "melanocytic", Confidence: &conf},
	})

	cfg := routing([]string{"a"}, nil)
	cfg.StageRouting["stage2_category"] = config.StageRoute{Primary: []string{"a"}}
	r := New(testConfig(cfg), nil, WithProvider("a", scripted))

	result := r.Route(context.Background(), provider.TaskCategory, provider.Input{}, "d1")
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Data.Category != "neoplastic" || result.Data.Subcategory != "melanocytic" {
		t.Errorf("payload = %+v", result.Data)
	}

	// Tasks the mock was not scripted for fail like a real provider.
	result = r.Route(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1")
	if result.Success {
		t.Error("unscripted task should fail")
	}
}

func TestRouteWithRetryStopsOnSuccess(t *testing.T) {
	r := New(testConfig(routing([]string{"a"}, nil)), nil,
		WithProvider("a", provider.NewMock()),
		WithSleep(func(context.Context, time.Duration) error {
			t.Fatal("no sleep expected on first-attempt success")
			return nil
		}),
	)

	result := r.RouteWithRetry(context.Background(), provider.TaskNormalAbnormal, provider.Input{}, "d1", 3)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
}

func TestProvidersSortedByPriority(t *testing.T) {
	cfg := &config.RoutingConfig{
		Providers: map[string]config.ProviderConfig{
			"c": {Enabled: true, Priority: 3},
			"a": {Enabled: true, Priority: 1},
			"b": {Enabled: false, Priority: 2},
		},
	}
	r := New(testConfig(cfg), nil,
		WithProvider("a", provider.NewMock()),
		WithProvider("b", provider.NewMock()),
		WithProvider("c", provider.NewMock()),
	)

	got := r.Providers()
	if len(got) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Name != want {
			t.Errorf("providers[%d] = %q, want %q", i, got[i].Name, want)
		}
	}
	if got[1].Enabled {
		t.Error("b should report disabled")
	}
}

type recordedCall struct {
	task     string
	provider string
	success  bool
}

type recordingSink struct {
	store.Nop
	calls []recordedCall
}

func (s *recordingSink) RecordAICall(_, task, providerName string, success bool, _ int64, _ string) error {
	s.calls = append(s.calls, recordedCall{task: task, provider: providerName, success: success})
	return nil
}
