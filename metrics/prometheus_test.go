package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "oms_test_gauge", Help: "test"})
	reg.MustRegister(g)
	g.Set(42)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func TestServerExposesMetrics(t *testing.T) {
	srv := NewServer("", testHandler(t))

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "oms_test_gauge 42") {
		t.Errorf("metric missing from body:\n%s", body)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestServeShutdownClean(t *testing.T) {
	srv := NewServer("127.0.0.1:0", testHandler(t))
	errc := Serve(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err, ok := <-errc:
		if ok && err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("server did not exit")
	}
}

func TestServeReportsListenError(t *testing.T) {
	srv := NewServer("invalid-addr:-1", testHandler(t))
	select {
	case err := <-Serve(srv):
		if err == nil {
			t.Fatal("expected listen error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}
