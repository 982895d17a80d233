package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/caz-payments/internal/core/events"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers: dangling payment cleanup and the payment event listener.`,
}

var cleanupWorkerCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reconcile payments left in a non-terminal state",
	Long:  `Run the dangling payment cleanup once, or every --interval until stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanupWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Listen for payment events on redis",
	Long:  `Subscribe to the payment events channel and log every status change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEventWorker()
	},
}

var cleanupInterval time.Duration

func init() {
	cleanupWorkerCmd.Flags().DurationVar(&cleanupInterval, "interval", 0, "repeat the cleanup at this interval (overrides cleanup.interval; 0 runs once)")

	workerCmd.AddCommand(cleanupWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCleanupWorker() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext()
	defer stop()

	interval := cfg.Cleanup.Interval
	if cleanupInterval > 0 {
		interval = cleanupInterval
	}

	if _, err := app.Cleanup.Run(ctx); err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}

	app.Logger.Info("cleanup worker running", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			app.Logger.Info("cleanup worker stopped")
			return nil
		case <-ticker.C:
			if _, err := app.Cleanup.Run(ctx); err != nil {
				app.Logger.Error("cleanup batch failed", "error", err)
			}
		}
	}
}

func runEventWorker() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Redis == nil {
		return fmt.Errorf("events.redis_addr is not configured")
	}

	ctx, stop := signalContext()
	defer stop()

	return events.Listen(ctx, app.Redis, cfg.Events.Channel, app.Logger, func(_ context.Context, env *events.Envelope) error {
		if env.Type != events.EventTypePaymentStatusChanged {
			return nil
		}
		var changed events.PaymentStatusChangedEvent
		if err := json.Unmarshal(env.Payload, &changed); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		app.Logger.Info("payment status changed",
			"event_id", env.ID,
			"payment_id", changed.PaymentID,
			"clean_air_zone_id", changed.CleanAirZoneID,
			"previous_status", changed.PreviousStatus,
			"status", changed.CurrentStatus,
			"entrant_payments", len(changed.EntrantIDs),
			"has_email", changed.EmailAddress != "")
		return nil
	})
}
