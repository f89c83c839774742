package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"smsledger/internal/cli"
	apphttp "smsledger/internal/http"
	"smsledger/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	srv := apphttp.NewServer(apphttp.ServerConfig{
		Addr:         ":" + cfg.Port,
		CacheTTL:     cfg.CacheTTL,
		RateLimitRPM: cfg.RateLimitRPM,
		CORSOrigin:   cfg.CORSOrigin,
		Logger:       logger,
	}, store)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown failed", log.FieldError, err)
		}
	})

	logger.Info("Starting smsledger-api",
		"addr", srv.Addr,
		"db", cfg.SQLiteDBPath,
		"cache_ttl", cfg.CacheTTL.String(),
		"rate_limit_rpm", cfg.RateLimitRPM)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
