package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	analytics "lounge-desk/internal/analytics/application"
	analyticshttp "lounge-desk/internal/analytics/interfaces"
	"lounge-desk/internal/audit"
	"lounge-desk/internal/auth"
	billingapi "lounge-desk/internal/billing/adapters/loungeapi"
	billingapp "lounge-desk/internal/billing/application"
	billinghttp "lounge-desk/internal/billing/interfaces"
	"lounge-desk/internal/deskconfig"
	frontdesk "lounge-desk/internal/frontdesk/application"
	frontdeskhttp "lounge-desk/internal/frontdesk/interfaces"
	lounge "lounge-desk/internal/loungeapi"
	"lounge-desk/internal/observability/metrics"
	review "lounge-desk/internal/review/application"
	reviewhttp "lounge-desk/internal/review/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	deskCfg, err := deskconfig.LoadConfig()
	if err != nil {
		logger.Fatalf("desk config error: %v", err)
	}
	tick, err := deskCfg.Tick()
	if err != nil {
		logger.Fatalf("desk config error: %v", err)
	}
	rates, err := deskCfg.RateCard()
	if err != nil {
		logger.Fatalf("desk config error: %v", err)
	}

	metrics.Init()

	var auditLogger audit.Logger
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		auditLogger = audit.NewRepository(db)
	} else {
		writer, err := audit.NewLogWriter(logger)
		if err != nil {
			logger.Fatalf("audit writer error: %v", err)
		}
		auditLogger = writer
	}

	client, err := lounge.NewClient(cfg.BackendURL,
		lounge.WithToken(cfg.BackendToken),
		lounge.WithTimeout(cfg.BackendTimeout),
		lounge.WithBreaker(cfg.BreakerFailures, cfg.BreakerOpenFor),
		lounge.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("lounge client error: %v", err)
	}
	backend, err := billingapi.NewBackend(client)
	if err != nil {
		logger.Fatalf("billing backend error: %v", err)
	}

	broker := billinghttp.NewSSEBroker()
	desk, err := billingapp.NewDesk(backend, broker, logger,
		billingapp.WithRateCard(rates),
		billingapp.WithDiscountOptions(deskCfg.Discounts),
		billingapp.WithTickInterval(tick),
		billingapp.WithLogger(logger),
		billingapp.WithClock(systemClock{}),
	)
	if err != nil {
		logger.Fatalf("desk error: %v", err)
	}
	sessionHandler, err := billinghttp.NewSessionHandler(desk, broker, auditLogger, deskCfg.Currency, logger)
	if err != nil {
		logger.Fatalf("session handler error: %v", err)
	}

	frontdeskService, err := frontdesk.NewService(client, deskCfg.Menu, systemClock{}, logger, frontdesk.WithDesk(desk))
	if err != nil {
		logger.Fatalf("frontdesk service error: %v", err)
	}
	frontdeskHandler, err := frontdeskhttp.NewHandler(frontdeskService, auditLogger)
	if err != nil {
		logger.Fatalf("frontdesk handler error: %v", err)
	}

	board, err := review.NewBoard(client, systemClock{}, logger)
	if err != nil {
		logger.Fatalf("review board error: %v", err)
	}
	reviewHandler, err := reviewhttp.NewHandler(board, auditLogger, deskCfg.Currency)
	if err != nil {
		logger.Fatalf("review handler error: %v", err)
	}

	dashboard, err := analytics.NewDashboard(client)
	if err != nil {
		logger.Fatalf("analytics dashboard error: %v", err)
	}
	analyticsHandler, err := analyticshttp.NewHandler(dashboard)
	if err != nil {
		logger.Fatalf("analytics handler error: %v", err)
	}

	var authMiddleware *auth.Middleware
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		authMiddleware = auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	} else {
		logger.Printf("auth disabled: AUTH_JWT_SECRET not set")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/sessions/", sessionsRouter(sessionHandler, frontdeskHandler))
	mux.Handle("/api/v1/registrations", frontdeskHandler)
	mux.Handle("/api/v1/registrations/", frontdeskHandler)
	mux.Handle("/api/v1/menu", frontdeskHandler)
	mux.Handle("/api/v1/review/", reviewHandler)
	mux.Handle("/api/v1/analytics/", analyticsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		desk.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s backend=%s", cfg.HTTPAddr, cfg.BackendURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
	logger.Printf("http stopped")
}

// sessionsRouter sends batch orders to the front desk and everything else to the billing desk.
func sessionsRouter(sessions, orders http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/orders/batch") {
			orders.ServeHTTP(w, r)
			return
		}
		sessions.ServeHTTP(w, r)
	})
}

type config struct {
	HTTPAddr        string
	BackendURL      string
	BackendToken    string
	BackendTimeout  time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	DatabaseURL     string
	JWTSecret       string
}

func loadConfig() config {
	cfg := config{
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		BackendURL:      getenvDefault("BACKEND_URL", ""),
		BackendToken:    getenvDefault("BACKEND_TOKEN", ""),
		BackendTimeout:  getenvDuration("BACKEND_TIMEOUT", 10*time.Second),
		BreakerFailures: uint32(getenvIntDefault("BACKEND_BREAKER_FAILURES", 5)),
		BreakerOpenFor:  getenvDuration("BACKEND_BREAKER_OPEN_FOR", 30*time.Second),
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.BackendURL == "" {
		log.Fatal("BACKEND_URL is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working behind the logger.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
