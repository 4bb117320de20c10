package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	accessPostgres "github.com/frahmantamala/iam-service/internal/access/postgres"
	"github.com/frahmantamala/iam-service/internal/audit"
	auditPostgres "github.com/frahmantamala/iam-service/internal/audit/postgres"
	"github.com/frahmantamala/iam-service/internal/auth"
	authPostgres "github.com/frahmantamala/iam-service/internal/auth/postgres"
	"github.com/frahmantamala/iam-service/internal/core/events"
	"github.com/frahmantamala/iam-service/internal/group"
	groupPostgres "github.com/frahmantamala/iam-service/internal/group/postgres"
	"github.com/frahmantamala/iam-service/internal/module"
	modulePostgres "github.com/frahmantamala/iam-service/internal/module/postgres"
	"github.com/frahmantamala/iam-service/internal/permission"
	permissionPostgres "github.com/frahmantamala/iam-service/internal/permission/postgres"
	"github.com/frahmantamala/iam-service/internal/role"
	rolePostgres "github.com/frahmantamala/iam-service/internal/role/postgres"
	"github.com/frahmantamala/iam-service/internal/transport"
	"github.com/frahmantamala/iam-service/internal/transport/rest"
	"github.com/frahmantamala/iam-service/internal/transport/swagger"
	"github.com/frahmantamala/iam-service/internal/user"
	userPostgres "github.com/frahmantamala/iam-service/internal/user/postgres"
	"github.com/frahmantamala/iam-service/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *gorm.DB
	SQL     *sqlx.DB
	Cache   access.PermissionCache
	Bus     *events.EventBus
	Router  *chi.Mux
	Logger  *slog.Logger
	Pingers map[string]rest.Pinger

	closers []func() error
}

func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Error("close failed", "error", err)
		}
	}
}

func startHTTPServer() {
	cfg := mustLoadConfig()
	ctx := context.Background()

	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if cfg.Server.OpenAPIPath != "" {
		if _, err := swagger.LoadSpec(ctx, cfg.Server.OpenAPIPath); err != nil {
			deps.Logger.Error("openapi document rejected", "error", err)
			os.Exit(1)
		}
	}

	deps.Router = newRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "cache", cfg.Cache.Driver)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
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
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		// let queued audit writes land before the pool closes
		if err := deps.Bus.Close(shutdownCtx); err != nil {
			deps.Logger.Warn("audit writes still pending at shutdown", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func initializeDependencies(ctx context.Context, cfg *internal.Config) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger.LoggerWrapper(),
		Pingers: map[string]rest.Pinger{},
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	deps.DB = db
	deps.SQL = sqlx.NewDb(sqlDB, "pgx")
	deps.Pingers["postgres"] = sqlDB
	deps.closers = append(deps.closers, sqlDB.Close)

	cache, err := buildCache(ctx, cfg.Cache, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Cache = cache
	deps.Bus = events.NewEventBus(deps.Logger)

	return deps, nil
}

// buildCache picks the permission cache for the configured driver. A redis
// cache registers its client for health checks and shutdown.
func buildCache(ctx context.Context, cfg internal.CacheConfig, deps *Dependencies) (access.PermissionCache, error) {
	switch cfg.Driver {
	case "none":
		return access.NoopCache{}, nil
	case "redis":
		client, err := access.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Pingers["redis"] = rest.PingerFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		deps.closers = append(deps.closers, client.Close)
		return access.NewRedisCache(client, cfg.Prefix, cfg.TTL, deps.Logger), nil
	default:
		return access.NewMemoryCache(cfg.Size, cfg.TTL), nil
	}
}

// newRouter builds every service and handler on top of deps and mounts them.
func newRouter(deps *Dependencies) *chi.Mux {
	cfg := deps.Config
	lg := deps.Logger
	base := transport.NewBaseHandler(lg)

	recorder := audit.NewRecorder(deps.Bus, auditPostgres.NewAuditRepository(deps.SQL), lg)
	recorder.Subscribe()

	resolver := access.NewResolver(accessPostgres.NewGraphRepository(deps.DB), deps.Cache, lg)

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authPostgres.NewRepository(deps.DB), tokens, lg)

	userService := user.NewService(userPostgres.NewUserRepository(deps.DB), resolver, cfg.Security.BCryptCost, lg)
	groupService := group.NewService(groupPostgres.NewGroupRepository(deps.DB), resolver, lg)
	roleService := role.NewService(rolePostgres.NewRoleRepository(deps.DB), resolver, lg)
	moduleService := module.NewService(modulePostgres.NewModuleRepository(deps.DB), resolver, lg)
	permissionService := permission.NewService(permissionPostgres.NewPermissionRepository(deps.DB), resolver, lg)

	groupRoles := access.NewAssigner(access.GroupRoles, accessPostgres.NewGroupRoleStore(deps.DB), resolver, lg)
	groupUsers := access.NewAssigner(access.GroupUsers, accessPostgres.NewGroupUserStore(deps.DB), resolver, lg)
	rolePermissions := access.NewAssigner(access.RolePermissions, accessPostgres.NewRolePermissionStore(deps.DB), resolver, lg)

	handlers := rest.Handlers{
		Auth:            auth.NewHandler(base, authService, recorder),
		RBAC:            auth.NewRBACAuthorization(resolver, lg),
		Users:           user.NewHandler(base, userService, recorder),
		Groups:          group.NewHandler(base, groupService, recorder),
		Roles:           role.NewHandler(base, roleService, recorder),
		Modules:         module.NewHandler(base, moduleService, recorder),
		Permissions:     permission.NewHandler(base, permissionService, recorder),
		GroupRoles:      access.NewAssignmentHandler(base, groupRoles, recorder),
		GroupUsers:      access.NewAssignmentHandler(base, groupUsers, recorder),
		RolePermissions: access.NewAssignmentHandler(base, rolePermissions, recorder),
		Resolver:        access.NewResolverHandler(base, resolver),
		Audit:           audit.NewHandler(base, recorder),
		Health:          rest.NewHealthHandler(deps.Pingers),
	}

	opts := rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, handlers, opts, lg)
	return router
}

// initDB opens the gorm pool. TranslateError lets repositories see
// gorm.ErrDuplicatedKey instead of driver specific errors.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
