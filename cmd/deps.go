package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/coursehub/internal"
	"github.com/frahmantamala/coursehub/internal/auth"
	authRepo "github.com/frahmantamala/coursehub/internal/auth/postgres"
	"github.com/frahmantamala/coursehub/internal/authz"
	authzCache "github.com/frahmantamala/coursehub/internal/authz/cache"
	authzRepo "github.com/frahmantamala/coursehub/internal/authz/postgres"
	"github.com/frahmantamala/coursehub/internal/core/events"
	"github.com/frahmantamala/coursehub/internal/observability"
	"github.com/frahmantamala/coursehub/internal/reconcile"
	reconcileStore "github.com/frahmantamala/coursehub/internal/reconcile/postgres"
	"github.com/frahmantamala/coursehub/internal/user"
	userRepo "github.com/frahmantamala/coursehub/internal/user/postgres"
	"github.com/frahmantamala/coursehub/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const refreshTokenTTL = 7 * 24 * time.Hour

type Dependencies struct {
	Config  *internal.Config
	Logger  *slog.Logger
	SQL     *sqlx.DB
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics *observability.Metrics
	Events  *events.EventBus

	AuthzRepo  authz.RepositoryAPI
	Catalog    *authz.Catalog
	Registry   *authz.Registry
	Resolver   *authz.Resolver
	Overrides  *authz.OverrideService
	Guard      *authz.Guard
	Reconciler *reconcile.Service
	Auth       *auth.Service
	Users      *user.Service
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)

	sqlDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlDB.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		Logger: lg,
		SQL:    sqlDB,
		DB:     db,
		Events: events.NewEventBus(lg),
	}
	events.SubscribeAudit(deps.Events, lg)

	if config.Observability.Metrics.Enabled {
		deps.Metrics = observability.NewMetrics()
	}

	resolverOpts := []authz.ResolverOption{authz.WithMetrics(deps.Metrics)}
	permCache, err := deps.initCache(ctx)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if permCache != nil {
		resolverOpts = append(resolverOpts, authz.WithCache(permCache))
	}

	deps.AuthzRepo = authzRepo.NewAuthzRepository(db)
	deps.Catalog = authz.DefaultCatalog()
	deps.Registry = authz.DefaultRegistry(deps.Catalog)
	deps.Resolver = authz.NewResolver(deps.AuthzRepo, deps.Catalog, lg, resolverOpts...)
	deps.Overrides = authz.NewOverrideService(deps.AuthzRepo, deps.Resolver, deps.Events, deps.Metrics, lg)
	deps.Guard = authz.NewGuard(deps.Resolver, deps.Metrics, lg)

	hasher := auth.NewBcryptHasher(config.Security.BCryptCost)
	tokens := auth.NewJWTTokenGenerator(config.Security.JWTSecret, config.Security.AccessTokenDuration, refreshTokenTTL)
	deps.Auth = auth.NewService(authRepo.NewRepository(db), tokens, hasher, lg)
	deps.Users = user.NewService(userRepo.NewUserRepository(db), deps.Resolver, deps.Registry, deps.Events, lg)

	deps.Reconciler = reconcile.NewService(
		reconcileStore.NewStore(db),
		deps.Catalog,
		deps.Registry,
		hasher,
		reconcile.Bootstrap{
			Email:    config.Bootstrap.Email,
			Name:     config.Bootstrap.Name,
			Password: config.Bootstrap.Password,
		},
		lg,
		reconcile.WithCache(deps.Resolver),
		reconcile.WithPublisher(deps.Events),
		reconcile.WithMetrics(deps.Metrics),
	)

	return deps, nil
}

func (d *Dependencies) initCache(ctx context.Context) (authz.PermissionCache, error) {
	cfg := d.Config.Cache
	switch cfg.Driver {
	case "memory":
		d.Logger.Info("permission cache enabled", "driver", "memory", "entries", cfg.MemoryEntries, "ttl", cfg.TTL)
		return authzCache.NewMemoryCache(cfg.MemoryEntries, cfg.TTL), nil
	case "redis":
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rc := authzCache.NewRedisCache(d.Redis, cfg.TTL, cfg.KeyPrefix)
		if err := rc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		d.Logger.Info("permission cache enabled", "driver", "redis", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
		return rc, nil
	default:
		d.Logger.Info("permission cache disabled")
		return nil, nil
	}
}

// Close waits for in-flight event handlers, then releases connections.
func (d *Dependencies) Close() {
	if d.Events != nil {
		d.Events.Wait()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.SQL.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
