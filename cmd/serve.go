package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/groupmix/smartsort/internal/ratelimit"
	"github.com/groupmix/smartsort/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve hosts the sort API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	st, err := r.buildStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := r.config
	limiter := ratelimit.NewUserLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window())

	router := server.NewBasicRouter()
	router.Use(
		server.LoggingMiddleware(r.logger),
		server.AuthMiddleware(cfg.Server.AuthToken),
		server.RateLimitMiddleware(limiter),
	)

	handler := server.NewSortHandler(st.scheduler, st.orders, st.metrics, r.logger)
	handler.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	notifyCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("sort engine listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-notifyCtx.Done():
		r.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}
