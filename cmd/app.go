package cmd

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/events"
	"github.com/frahmantamala/caz-payments/internal/credentials"
	"github.com/frahmantamala/caz-payments/internal/entrantpayment"
	entrantpostgres "github.com/frahmantamala/caz-payments/internal/entrantpayment/postgres"
	"github.com/frahmantamala/caz-payments/internal/payment"
	paymentpostgres "github.com/frahmantamala/caz-payments/internal/payment/postgres"
	"github.com/frahmantamala/caz-payments/internal/paymentprovider"
	"github.com/frahmantamala/caz-payments/internal/settlement"
	settlementpostgres "github.com/frahmantamala/caz-payments/internal/settlement/postgres"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

// App holds every wired service shared by the server and the workers.
type App struct {
	Config *internal.Config
	Logger *slog.Logger
	DB     *gorm.DB
	SQLX   *sqlx.DB
	Redis  *redis.Client
	Bus    *events.EventBus

	EntrantPayments *entrantpayment.Service
	Initiation      *payment.InitiationService
	Reconciliation  *payment.ReconciliationService
	Cleanup         *payment.CleanupService
	Mandates        *payment.MandateService
	Settlements     *settlement.Service
	Provider        *paymentprovider.Client
}

func newApp(cfg *internal.Config) (*App, error) {
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: lg,
		DB:     db,
		SQLX:   sqlx.NewDb(sqlDB, "pgx"),
		Bus:    events.NewEventBus(lg),
	}

	if cfg.Events.RedisAddr != "" {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		forwarder := events.NewRedisForwarder(app.Redis, cfg.Events.Channel, lg)
		app.Bus.Subscribe(events.EventTypePaymentStatusChanged, forwarder.Handle)
	}

	resolver := credentials.NewStaticResolver(cfg.Zones)
	app.Provider = paymentprovider.NewClient(paymentprovider.Config{
		BaseURL: cfg.PaymentProvider.BaseURL,
		Timeout: cfg.PaymentProvider.Timeout,
	}, resolver, lg)

	entrantRepo := entrantpostgres.NewEntrantPaymentRepository(db)
	paymentRepo := paymentpostgres.NewPaymentRepository(db)

	app.EntrantPayments = entrantpayment.NewService(entrantRepo, lg)
	updater := payment.NewStatusUpdater(paymentRepo, app.Bus, lg)
	app.Initiation = payment.NewInitiationService(paymentRepo, app.EntrantPayments, app.Provider, lg)
	app.Reconciliation = payment.NewReconciliationService(paymentRepo, app.Provider, updater, lg)
	app.Cleanup = payment.NewCleanupService(paymentRepo, app.Provider, updater, payment.CleanupConfig{
		DanglingAfter: cfg.Cleanup.DanglingAfter,
		BatchSize:     cfg.Cleanup.BatchSize,
		Concurrency:   cfg.Cleanup.Concurrency,
		MaxRetries:    cfg.Cleanup.MaxRetries,
		RetryBackoff:  cfg.Cleanup.RetryBackoff,
	}, lg)
	app.Mandates = payment.NewMandateService(app.Provider, lg)
	app.Settlements = settlement.NewService(settlementpostgres.NewSettlementRepository(app.SQLX), lg)

	return app, nil
}

// Close waits for in-flight event handlers before releasing connections.
func (a *App) Close() {
	a.Bus.Wait()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}
	if err := a.SQLX.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
}

func (a *App) pingRedis(ctx context.Context) error {
	return a.Redis.Ping(ctx).Err()
}

// initDB opens the GORM connection pool over the pgx driver.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: cfg.GetDSN()}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
