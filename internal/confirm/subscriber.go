// Package confirm waits for the asynchronous payment confirmation that the
// KVERKOM broker publishes after an instant payment settles.
//
// One subscription attempt walks Connecting -> Subscribing -> Listening and
// ends in exactly one of Completed, TimedOut, ConnectionFailed or
// SubscribeFailed. Message arrival, deadline expiry and transport errors race
// against each other; a single-assignment result cell guarantees the attempt
// resolves once no matter the interleaving.
package confirm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efabox/instapay-api/internal/cert"
	"github.com/efabox/instapay-api/internal/common"
)

// Status is the terminal state of a subscription attempt.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusTimedOut         Status = "timeout"
	StatusConnectionFailed Status = "connection_failed"
	StatusSubscribeFailed  Status = "subscribe_failed"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesceMs   = 250
)

// Request identifies the confirmation to wait for. The topic is fully
// determined by the certificate identity plus the transaction id.
type Request struct {
	Identity      cert.Identity
	TransactionID string
}

// Outcome is the result of one attempt. Log is always populated, including on
// failures, so callers can surface the communication trace.
type Outcome struct {
	Status      Status
	Messages    []string
	PaymentData json.RawMessage
	Elapsed     time.Duration
	Log         []string
}

// Subscriber opens one TLS broker connection per attempt. No pooling, no
// reconnection: the connection and deadline timer belong to the attempt and
// are released on every exit path.
type Subscriber struct {
	BrokerAddr     string
	TLS            *tls.Config
	Timeout        time.Duration
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	Logger         zerolog.Logger

	// NewClient is a test seam; nil means paho's constructor.
	NewClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewSubscriber wires a subscriber from certificate material.
func NewSubscriber(brokerAddr string, material cert.Material, timeout time.Duration, logger zerolog.Logger) (*Subscriber, error) {
	tlsConfig, err := material.TLSConfig()
	if err != nil {
		return nil, common.ConfigError("invalid certificate material", err)
	}
	return &Subscriber{
		BrokerAddr: brokerAddr,
		TLS:        tlsConfig,
		Timeout:    timeout,
		Logger:     logger,
	}, nil
}

type resolution struct {
	status Status
	err    error
}

// Await blocks until a confirmation message arrives on the attempt's topic,
// the deadline expires, or the transport fails, whichever happens first. The
// deadline covers the whole attempt: connecting and subscribing eat into the
// listening window, they never extend it. TimedOut is an expected outcome and
// returns a nil error; transport failures return an AppError alongside the
// partially filled Outcome.
func (s *Subscriber) Await(ctx context.Context, req Request) (Outcome, error) {
	log := NewLog()
	start := time.Now()

	if !req.Identity.Complete() || strings.TrimSpace(req.TransactionID) == "" {
		return Outcome{Log: log.Entries()}, common.NewAppError(
			common.CodeMissingIdentity,
			"transactionId, tenant id and terminal id are required; the client certificate must carry VATSK and POKLADNICA markers",
			http.StatusBadRequest, nil,
		)
	}

	topic := req.Identity.Topic(req.TransactionID)
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	log.Append("initiating broker connection to %s", s.BrokerAddr)
	log.Append("using TLS with client certificate authentication")
	log.Append("subscribing to topic: %s", topic)
	log.Append("timeout: %s", timeout)

	// Single-assignment result cell. Every event source funnels through
	// resolve; only the first call wins, later ones are diagnostics only.
	resolved := make(chan resolution, 1)
	var once sync.Once
	resolve := func(res resolution) {
		once.Do(func() { resolved <- res })
	}

	var msgMu sync.Mutex
	var messages []string

	opts := mqtt.NewClientOptions().
		AddBroker("ssl://" + s.BrokerAddr).
		SetClientID("instapay-" + uuid.NewString()[:8]).
		SetTLSConfig(s.TLS).
		SetKeepAlive(s.keepAlive()).
		SetConnectTimeout(s.connectTimeout()).
		SetAutoReconnect(false).
		SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Append("connection lost: %v", err)
		resolve(resolution{status: StatusConnectionFailed, err: err})
	})

	newClient := s.NewClient
	if newClient == nil {
		newClient = mqtt.NewClient
	}
	client := newClient(opts)
	defer client.Disconnect(disconnectQuiesceMs)

	// The deadline starts before the connection attempt so that a broker that
	// is slow to accept the connection or the subscription cannot stretch the
	// total wait past the ceiling.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		if token := client.Connect(); !token.WaitTimeout(s.connectTimeout()) || token.Error() != nil {
			err := token.Error()
			if err == nil {
				err = errors.New("connect timed out")
			}
			log.Append("broker connection failed: %v", err)
			s.Logger.Error().Err(err).Str("broker", s.BrokerAddr).Msg("broker connect failed")
			resolve(resolution{status: StatusConnectionFailed, err: err})
			return
		}
		log.Append("connected to broker")

		handler := func(_ mqtt.Client, msg mqtt.Message) {
			payload := string(msg.Payload())
			msgMu.Lock()
			messages = append(messages, payload)
			msgMu.Unlock()
			log.Append("payment notification received: %s", payload)
			s.Logger.Info().Str("topic", msg.Topic()).Msg("confirmation message received")
			resolve(resolution{status: StatusCompleted})
		}
		if token := client.Subscribe(topic, 1, handler); !token.WaitTimeout(s.connectTimeout()) || token.Error() != nil {
			err := token.Error()
			if err == nil {
				err = errors.New("subscribe timed out")
			}
			log.Append("subscription failed: %v", err)
			s.Logger.Error().Err(err).Str("topic", topic).Msg("broker subscribe failed")
			resolve(resolution{status: StatusSubscribeFailed, err: err})
			return
		}
		log.Append("subscribed to topic with QoS 1")
		log.Append("listening for payment notifications")
	}()

	var res resolution
	select {
	case res = <-resolved:
	case <-timer.C:
		res = resolution{status: StatusTimedOut}
	case <-ctx.Done():
		res = resolution{status: StatusConnectionFailed, err: ctx.Err()}
	}

	elapsed := time.Since(start)
	msgMu.Lock()
	snapshot := make([]string, len(messages))
	copy(snapshot, messages)
	msgMu.Unlock()

	outcome := Outcome{
		Status:   res.status,
		Messages: snapshot,
		Elapsed:  elapsed,
	}

	switch res.status {
	case StatusCompleted:
		log.Append("returning response after %d seconds", int(elapsed.Seconds()))
		if len(snapshot) > 0 && json.Valid([]byte(snapshot[0])) {
			outcome.PaymentData = json.RawMessage(snapshot[0])
		} else if len(snapshot) > 0 {
			// Unparsable payloads are tolerated; the raw message still counts.
			log.Append("notification payload is not valid JSON, returning raw message")
		}
	case StatusTimedOut:
		log.Append("timeout reached after %s", timeout)
		log.Append("total messages received: %d", len(snapshot))
	}
	outcome.Log = log.Entries()

	switch res.status {
	case StatusConnectionFailed:
		return outcome, common.NewAppError(common.CodeConnectionFailed, "broker connection failed", http.StatusBadGateway, res.err)
	case StatusSubscribeFailed:
		return outcome, common.NewAppError(common.CodeSubscribeFailed, "broker subscription failed", http.StatusBadGateway, res.err)
	default:
		return outcome, nil
	}
}

func (s *Subscriber) connectTimeout() time.Duration {
	if s.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return s.ConnectTimeout
}

func (s *Subscriber) keepAlive() time.Duration {
	if s.KeepAlive <= 0 {
		return defaultKeepAlive
	}
	return s.KeepAlive
}
