package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	"github.com/mohammadpnp/account-reconcile/internal/config"
	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
	infradb "github.com/mohammadpnp/account-reconcile/internal/infrastructure/db"
	"github.com/mohammadpnp/account-reconcile/internal/infrastructure/lock"
	"github.com/mohammadpnp/account-reconcile/internal/infrastructure/repository"
	"github.com/mohammadpnp/account-reconcile/internal/infrastructure/targets"
	httpecho "github.com/mohammadpnp/account-reconcile/internal/interfaces/http/echo"
)

// App holds the wired process: connections, adapters and use cases.
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	DB      *gorm.DB
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Targets *targets.Registry
	Lock    domain.TargetLock

	UseCases httpecho.ReconcileUseCases
}

func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.DB = db

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	a.Pool = pool

	if cfg.AutoMigrate {
		if err := a.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	registry, err := targets.LoadRegistry(cfg.TargetsFile, cfg.DirectoryTimeout)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load targets: %w", err)
	}
	a.Targets = registry

	if err := a.openLock(ctx); err != nil {
		a.Close()
		return nil, err
	}

	ledger := repository.NewBatchRepository(db, pool)
	audit := repository.NewAuditRepository(db)
	policy := app.SafetyPolicy{
		WarnDisableCount:    cfg.Safety.WarnDisableCount,
		WarnDeleteCount:     cfg.Safety.WarnDeleteCount,
		WarnGroupClearCount: cfg.Safety.WarnGroupClearCount,
		WarnCreateCount:     cfg.Safety.WarnCreateCount,
		RequireTypedConfirm: cfg.Safety.RequireTypedConfirm,
	}

	a.UseCases = httpecho.ReconcileUseCases{
		Preview:  app.NewPreviewBatch(registry, ledger, policy, log),
		GetBatch: app.NewGetBatch(ledger),
		Report:   app.NewExportBatchReport(ledger),
		Apply: app.NewApplyBatch(ledger, audit, a.Lock, registry, policy, app.ApplyOptions{
			AllowDelete:  cfg.AllowDelete,
			SendKeyEmail: cfg.SendKeyEmail,
			Timeout:      cfg.ApplyTimeout,
		}, log),
		Recover:     app.NewRecoverBatch(ledger, a.Lock, log),
		ExportUsers: app.NewExportTargetUsers(registry),
		Audit:       app.NewListAuditHistory(audit),
	}

	log.WithFields(logrus.Fields{
		"targets":      len(registry.Targets()),
		"lock_backend": cfg.Lock.Backend,
		"allow_delete": cfg.AllowDelete,
	}).Info("application wired")
	return a, nil
}

func (a *App) openLock(ctx context.Context) error {
	switch a.Config.Lock.Backend {
	case config.LockBackendRedis:
		opts, err := redis.ParseURL(a.Config.Lock.RedisURL)
		if err != nil {
			return fmt.Errorf("parse LOCK_REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = client
		a.Lock = lock.NewRedisLock(client, a.Config.Lock.RedisTTL, a.Log)
	case config.LockBackendMemory:
		a.Log.Warn("memory target lock only serializes applies inside this process")
		a.Lock = lock.NewMemoryLock()
	default:
		a.Lock = lock.NewAdvisoryLock(a.Pool)
	}
	return nil
}

// Migrate applies the embedded goose migrations.
func (a *App) Migrate(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := infradb.Migrate(ctx, sqlDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Log.Info("migrations applied")
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
