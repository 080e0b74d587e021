package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	allocapp "netgen-allocation/internal/allocation/application"
	"netgen-allocation/internal/allocation/infrastructure/objectstore"
	allocpostgres "netgen-allocation/internal/allocation/infrastructure/postgres"
	allochttp "netgen-allocation/internal/allocation/interfaces/http"
	allocmetrics "netgen-allocation/internal/allocation/metrics"
	allocnotify "netgen-allocation/internal/allocation/notify"
	"netgen-allocation/internal/audit"
	"netgen-allocation/internal/auth"
	"netgen-allocation/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db)

	allocCfg, err := allocapp.LoadConfig()
	if err != nil {
		logger.Fatalf("allocation config error: %v", err)
	}
	archive, err := buildArchiveStore(context.Background(), allocCfg)
	if err != nil {
		logger.Fatalf("allocation archive store error: %v", err)
	}
	var notifier allocnotify.Notifier
	if allocCfg.WebhookURL != "" {
		notifier = allocnotify.NewWebhookNotifier(allocCfg.WebhookURL)
	}

	allocRepo := allocpostgres.NewRepository(db)
	runner, err := allocapp.NewRunner(
		allocRepo,
		allocpostgres.NewSource(db),
		archive,
		allocCfg,
		notifier,
		allocmetrics.New(),
		logger,
	)
	if err != nil {
		logger.Fatalf("allocation runner init error: %v", err)
	}
	allocHandler, err := allochttp.NewHandler(runner, allocRepo, audit.NewRepository(db))
	if err != nil {
		logger.Fatalf("allocation handler init error: %v", err)
	}
	trustedProxies, err := audit.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatalf("trusted proxies error: %v", err)
	}
	allocHandler.SetTrustedProxies(trustedProxies)
	scheduler := allocapp.NewScheduler(runner, allocCfg.Schedule, logger)
	go scheduler.Start(context.Background())

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/allocation/run", allocHandler)
	mux.Handle("/api/v1/allocation/reports", allocHandler)
	mux.Handle("/api/v1/allocation/reports/", allocHandler)
	mux.Handle("/api/v1/allocation/allocations", allocHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL    string
	HTTPAddr       string
	JWTSecret      string
	TrustedProxies string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:      getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		TrustedProxies: os.Getenv("TRUSTED_PROXIES"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
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

func buildArchiveStore(ctx context.Context, cfg allocapp.Config) (allocapp.ArchiveStore, error) {
	if cfg.ObjectStore.Endpoint != "" {
		return objectstore.NewMinioStore(ctx, cfg.ObjectStore.Endpoint, cfg.ObjectStore.AccessKey, cfg.ObjectStore.SecretKey, cfg.ObjectStore.Bucket, cfg.ObjectStore.UseSSL)
	}
	return objectstore.NewLocalStore(cfg.StorageRoot)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, resp.status, elapsed)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, elapsed)
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
