package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/caz-payments/internal/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/payment"
	"github.com/frahmantamala/caz-payments/internal/settlement"
	"github.com/frahmantamala/caz-payments/internal/transport/rest"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	setupRoutes(router, app)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			app.Close()
			os.Exit(1)
		}
	}

	app.Close()
	slog.Info("Server stopped")
}

func setupRoutes(router chi.Router, app *App) {
	checks := map[string]rest.Check{
		"postgres": app.SQLX.PingContext,
	}
	if app.Redis != nil {
		checks["redis"] = app.pingRedis
	}

	rest.RegisterAllRoutes(router, rest.Handlers{
		Health:         rest.NewHealthHandler(checks),
		Payment:        payment.NewHandler(app.Initiation, app.Reconciliation, app.Mandates, app.Logger),
		EntrantPayment: entrantpayment.NewHandler(app.EntrantPayments, app.Logger),
		Settlement:     settlement.NewHandler(app.Settlements, app.Logger),
	}, app.Logger)
}
