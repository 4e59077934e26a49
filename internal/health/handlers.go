package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingBroker(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// notConfiguredError marks a dependency that is intentionally absent. It
// keeps the probe visible in the readiness payload without failing it.
type notConfiguredError struct{ dep string }

func (e notConfiguredError) Error() string { return e.dep + " not configured" }

// Probes checks the live service dependencies: broker TCP reachability and,
// when configured, redis.
type Probes struct {
	BrokerAddr string
	Redis      *redis.Client
}

// PingBroker dials the broker address without completing a TLS handshake.
// Reachability is what readiness cares about; the handshake is exercised per
// subscription attempt.
func (p Probes) PingBroker(_ context.Context, timeout time.Duration) error {
	if p.BrokerAddr == "" {
		return notConfiguredError{dep: "broker"}
	}
	conn, err := net.DialTimeout("tcp", p.BrokerAddr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// PingRedis pings redis when a client is configured.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return notConfiguredError{dep: "redis"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker       Checker
	BrokerTimeout time.Duration
	RedisTimeout  time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. Dependencies that are
// deliberately not configured report their state without failing readiness.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	brokerStatus, brokerOK := probeStatus(h.Checker.PingBroker(ctx, h.brokerTimeout()))
	redisStatus, redisOK := probeStatus(h.Checker.PingRedis(ctx, h.redisTimeout()))

	status := map[string]string{
		"broker": brokerStatus,
		"redis":  redisStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	if !brokerOK || !redisOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func probeStatus(err error) (string, bool) {
	if err == nil {
		return "ok", true
	}
	var notConfigured notConfiguredError
	if errors.As(err, &notConfigured) {
		return "not configured", true
	}
	return err.Error(), false
}

func (h Handler) brokerTimeout() time.Duration {
	if h.BrokerTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.BrokerTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
