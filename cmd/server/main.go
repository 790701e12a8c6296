package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"user-directory/internal/cache"
	"user-directory/internal/config"
	"user-directory/internal/credentials"
	"user-directory/internal/database"
	"user-directory/internal/directory"
	"user-directory/internal/handlers"
	"user-directory/internal/logging"
	"user-directory/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		users interface {
			directory.UserStore
			handlers.Pinger
		}
		audit interface {
			directory.AuditRecorder
			handlers.AuditLister
		}
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		log.Warn(ctx, "using in-memory storage, data is lost on restart")
		users = database.NewMemoryUserStore()
		audit = database.NewMemoryAuditStore()
	default:
		db, err := database.Open(ctx, cfg.DBDSN, log)
		if err != nil {
			return err
		}
		defer database.Close(db)
		users = database.NewGormUserStore(db)
		audit = database.NewGormAuditStore(db)
	}

	opts := []directory.Option{directory.WithAudit(audit)}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn(ctx, "stats cache disabled", "error", err)
		} else {
			defer rdb.Close()
			opts = append(opts, directory.WithStatsCache(cache.NewRedisStatsCache(rdb, cfg.StatsCacheTTL)))
		}
	}

	svc := directory.NewService(users, credentials.NewHasher(cfg.BcryptCost), log, opts...)

	result := svc.EnsureDefaultAdmin(ctx, directory.AdminAccount{
		Name:     cfg.AdminName,
		Password: cfg.AdminPassword,
	})
	log.Info(ctx, "bootstrap finished", "result", result.String())

	r := server.NewRouter(cfg, handlers.New(svc, audit, users, log), log)
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
