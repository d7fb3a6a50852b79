package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"otc-service/internal/config"
	"otc-service/internal/factory"
	"otc-service/internal/handler"
	"otc-service/internal/util"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP(S) server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer util.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	f, err := factory.NewFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize factory: %w", err)
	}
	defer f.Close()

	router := setupRouter(f)

	servers := []*http.Server{newServer(cfg, router)}
	if cfg.Server.EnableTLS {
		servers[0].Addr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
		servers[0].TLSConfig = f.TLSManager().GetTLSConfig()

		// Plain listener for ACME challenges and HTTPS redirects.
		if cfg.Server.AutoCert {
			servers = append(servers, &http.Server{
				Addr:              cfg.GetServerAddress(),
				Handler:           f.TLSManager().HTTPHandler(nil),
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
			})
		}
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port))
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		srv := srv
		useTLS := cfg.Server.EnableTLS && i == 0
		go func() {
			util.Info("Server listening",
				util.String("address", srv.Addr),
				util.Bool("tls", useTLS))

			var err error
			if useTLS {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		util.Info("Received shutdown signal")
	case err := <-errCh:
		util.Error("Server failed", util.ErrorField(err))
		shutdown(servers)
		return err
	}

	shutdown(servers)
	return nil
}

func newServer(cfg *config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func setupRouter(f *factory.Factory) http.Handler {
	cfg := f.Config()
	accountService := f.ServiceFactory().AccountService()
	otpHandler := handler.NewOTPHandler(accountService, cfg.OTP.ResendCooldown, util.Get()).
		WithRateLimiter(f.RateLimiter())

	return handler.NewRouter(otpHandler, f.IsHealthy, handler.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequireHTTPS:   cfg.Server.EnableTLS,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, util.Get())
}

func shutdown(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		}
	}
	util.Info("Server shutdown completed")
}
