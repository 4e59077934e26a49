package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/efabox/instapay-api/internal/health"
)

type stubChecker struct {
	brokerErr error
	redisErr  error
}

func (s stubChecker) PingBroker(_ context.Context, _ time.Duration) error {
	return s.brokerErr
}

func (s stubChecker) PingRedis(_ context.Context, _ time.Duration) error {
	return s.redisErr
}

func TestLive(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestReadySuccess(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status["broker"] != "ok" || status["redis"] != "ok" {
		t.Fatalf("unexpected status payload: %v", status)
	}
}

func TestReadyBrokerDown(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{brokerErr: errors.New("dial tcp: connection refused")}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
}

func TestProbesReportUnconfiguredDependenciesAsReady(t *testing.T) {
	handler := health.Handler{Checker: health.Probes{}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status["broker"] != "not configured" || status["redis"] != "not configured" {
		t.Fatalf("unexpected status payload: %v", status)
	}
}

func TestProbesDialBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	probes := health.Probes{BrokerAddr: ln.Addr().String()}
	if err := probes.PingBroker(context.Background(), time.Second); err != nil {
		t.Fatalf("expected broker probe to succeed: %v", err)
	}
}
