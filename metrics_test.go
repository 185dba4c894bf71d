package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMetricsDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("metrics must be off by default")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled metrics recorded %d", got)
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}
}

func TestMetricsCountersAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	for i := 0; i < 3; i++ {
		m.Inc(MetricLoginSuccess)
	}
	m.Inc(MetricRefreshSuccess)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 3 {
		t.Fatalf("snapshot login count = %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("snapshot refresh count = %d", snap.Counters[MetricRefreshSuccess])
	}
}

func TestMetricsHistogramRequiresOptIn(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)
	if got := m.Snapshot().Histograms[MetricValidateLatency]; got != nil {
		t.Fatal("latency histogram must be opt-in")
	}

	m = NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricValidateLatency, time.Millisecond)
	m.Observe(MetricValidateLatency, time.Second)

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if buckets == nil {
		t.Fatal("expected latency buckets")
	}
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != 2 {
		t.Fatalf("expected 2 observations, got %d", total)
	}
}

func TestEngineCountsLoginOutcomes(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	ctx := context.Background()

	if _, err := h.engine.Login(ctx, testUsername, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.engine.Login(ctx, testUsername, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success count = %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure count = %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("session created count = %d", snap.Counters[MetricSessionCreated])
	}
}

func TestEngineCountsRefreshReuse(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	ctx := context.Background()

	login, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("refresh success count = %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricRefreshRevokedRejected] != 1 {
		t.Fatalf("revoked rejected count = %d", snap.Counters[MetricRefreshRevokedRejected])
	}
}
