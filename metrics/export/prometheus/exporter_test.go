package prometheus

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/identity"
)

type fakeSource struct {
	snapshot     authgate.MetricsSnapshot
	auditDropped uint64
	mailDropped  uint64
}

func (f fakeSource) MetricsSnapshot() authgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.auditDropped }
func (f fakeSource) MailDropped() uint64                       { return f.mailDropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters:   map[authgate.MetricID]uint64{},
			Histograms: map[authgate.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters: map[authgate.MetricID]uint64{
				authgate.MetricLoginSuccess:         7,
				authgate.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[authgate.MetricID][]uint64{
				authgate.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		auditDropped: 2,
		mailDropped:  3,
	})

	out := exp.Render()
	for _, want := range []string{
		"authgate_login_success_total 7",
		"authgate_refresh_reuse_detected_total 1",
		"authgate_logout_total 0",
		"authgate_authenticate_latency_seconds_bucket{le=\"0.005\"} 1",
		"authgate_authenticate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"authgate_authenticate_latency_seconds_count 36",
		"authgate_audit_dropped_total 2",
		"authgate_mail_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsDisabledHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters:   map[authgate.MetricID]uint64{authgate.MetricLogout: 1},
			Histograms: map[authgate.MetricID][]uint64{},
		},
	})
	if out := exp.Render(); strings.Contains(out, "latency") {
		t.Fatalf("histogram rendered without samples:\n%s", out)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authgate.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.Password.Algorithm = authgate.PasswordBcrypt
	cfg.Password.BcryptCost = 4

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(identity.NewMemoryStore()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Authenticate(t.Context(), "garbage"); err == nil {
		t.Fatal("expected garbage token to fail")
	}

	rec := httptest.NewRecorder()
	NewPrometheusExporter(engine).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authgate_authenticate_failure_total 1") {
		t.Fatalf("expected failure counter, got:\n%s", rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters: map[authgate.MetricID]uint64{
				authgate.MetricLoginSuccess:        1000,
				authgate.MetricLoginFailure:        40,
				authgate.MetricRefreshSuccess:      800,
				authgate.MetricRefreshFailure:      10,
				authgate.MetricSessionCreated:      800,
				authgate.MetricSessionSuperseded:   20,
				authgate.MetricAuthenticateSuccess: 9000,
			},
			Histograms: map[authgate.MetricID][]uint64{
				authgate.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
