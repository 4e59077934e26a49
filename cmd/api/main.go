package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/efabox/instapay-api/internal/cert"
	"github.com/efabox/instapay-api/internal/common"
	"github.com/efabox/instapay-api/internal/config"
	"github.com/efabox/instapay-api/internal/confirm"
	"github.com/efabox/instapay-api/internal/health"
	"github.com/efabox/instapay-api/internal/instantpay"
	"github.com/efabox/instapay-api/internal/nop"
	"github.com/efabox/instapay-api/internal/obs"
	"github.com/efabox/instapay-api/internal/paylink"
	"github.com/efabox/instapay-api/internal/ratelimit"
	"github.com/efabox/instapay-api/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "instapay")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	var paymentMetrics *obs.PaymentMetrics
	if metricsEnabled {
		paymentMetrics = obs.NewPaymentMetrics(metricsNamespace, nil)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "instapay-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		cancel()
	} else {
		logger.Warn().Msg("redis not configured; idempotency and rate limiting are disabled")
	}

	svc := buildService(cfg, logger, paymentMetrics)
	handler := &instantpay.Handler{Svc: svc}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	subscribeLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return "subscribe:" + common.ClientIP(r) },
			Window: cfg.SubscribeRateWindow,
			Max:    cfg.SubscribeRateMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter store error")
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS: envBool("SECURE_HSTS_ENABLE", false),
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_BODY_LIMIT_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:       health.Probes{BrokerAddr: cfg.BrokerAddr(), Redis: redisClient},
		BrokerTimeout: envDurationMillis("HEALTH_READY_BROKER_TIMEOUT_MS", 500),
		RedisTimeout:  envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1/instant-payment", func(v chi.Router) {
		v.With(idem.Middleware).Post("/init", handler.Init)
		v.With(subscribeLimit.Middleware).Post("/subscribe", handler.Subscribe)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
		// The subscribe endpoint holds connections up to the subscribe
		// timeout; the write timeout must exceed it.
		WriteTimeout:      cfg.SubscribeTimeout + 30*time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

// buildService wires the instant-payment flow. Missing certificate material
// does not stop the process: initiation and confirmation report configuration
// errors per request instead, matching how checkout degrades in the field.
func buildService(cfg *config.Config, logger zerolog.Logger, metrics *obs.PaymentMetrics) *instantpay.Service {
	svc := &instantpay.Service{
		Links:            paylink.Encoder{BaseURL: cfg.PaymentLinkBaseURL},
		Currency:         cfg.CurrencyCode,
		SubscribeTimeout: cfg.SubscribeTimeout,
		Validate:         validator.New(),
		Metrics:          metrics,
		Logger:           logger,
	}

	material, err := cert.NewMaterial(cfg.ClientCertPEM, cfg.ClientKeyPEM, cfg.CABundlePEM)
	if err != nil {
		logger.Warn().Err(err).Msg("certificate material not configured; payment endpoints will report CONFIG errors")
		return svc
	}

	identity, err := cert.FromPEMString(cfg.ClientCertPEM)
	if err != nil {
		logger.Error().Err(err).Str("code", common.CodeCertParse).Msg("parse client certificate identity")
	} else if !identity.Complete() {
		logger.Warn().Msg("client certificate carries no VATSK/POKLADNICA markers; confirmation requires explicit identity")
	}
	svc.Identity = identity

	nopClient, err := nop.NewClient(cfg.NOPBaseURL, material, cfg.NOPRequestTimeout)
	if err != nil {
		logger.Error().Err(err).Msg("initialise transaction id client")
	} else {
		svc.Transactions = nopClient
	}

	subscriber, err := confirm.NewSubscriber(cfg.BrokerAddr(), material, cfg.SubscribeTimeout, logger)
	if err != nil {
		logger.Error().Err(err).Msg("initialise confirmation subscriber")
	} else {
		svc.Waiter = subscriber
	}
	return svc
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
