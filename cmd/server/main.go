package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"e2ee-channels/internal/config"
	"e2ee-channels/internal/observability/logging"
	"e2ee-channels/internal/observability/metrics"
	"e2ee-channels/internal/service"
	"e2ee-channels/internal/store"
	httptransport "e2ee-channels/internal/transport/http"
	"e2ee-channels/pkg/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "channel-encryption",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	gormDB, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		log.Fatalf("gorm open: %v", err)
	}

	st := store.New(gormDB)
	if err := st.AutoMigrate(context.Background()); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	metrics.MustRegister("channel-encryption")

	svc := service.New(st)
	router := httptransport.NewRouter(svc, httptransport.RouterConfig{
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("channel encryption service listening", "addr", cfg.Addr)
	log.Fatal(srv.ListenAndServe())
}
