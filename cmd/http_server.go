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

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/auth"
	authPostgres "github.com/frahmantamala/rbac-admin/internal/auth/postgres"
	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
	"github.com/frahmantamala/rbac-admin/internal/datascope"
	datascopePostgres "github.com/frahmantamala/rbac-admin/internal/datascope/postgres"
	"github.com/frahmantamala/rbac-admin/internal/dept"
	deptPostgres "github.com/frahmantamala/rbac-admin/internal/dept/postgres"
	"github.com/frahmantamala/rbac-admin/internal/realtime"
	"github.com/frahmantamala/rbac-admin/internal/session"
	sessionPostgres "github.com/frahmantamala/rbac-admin/internal/session/postgres"
	"github.com/frahmantamala/rbac-admin/internal/transport"
	"github.com/frahmantamala/rbac-admin/internal/transport/middleware"
	"github.com/frahmantamala/rbac-admin/internal/transport/rest"
	"github.com/frahmantamala/rbac-admin/internal/transport/swagger"
	"github.com/frahmantamala/rbac-admin/internal/user"
	userPostgres "github.com/frahmantamala/rbac-admin/internal/user/postgres"
	"github.com/frahmantamala/rbac-admin/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and realtime connections`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Bus      *events.EventBus
	Notifier *realtime.Notifier
	Logger   *slog.Logger
}

// Services is the domain layer built on top of the storage handles.
type Services struct {
	Codec     *auth.TokenCodec
	Auth      *auth.Service
	Sessions  *session.Service
	Scope     *datascope.Resolver
	Hierarchy *dept.Hierarchy
	Users     *user.Service
	RBAC      *auth.RBACAuthorization
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	svc := setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	reloadCtx, stopReload := context.WithCancel(context.Background())
	defer stopReload()
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	go watchReload(reloadCtx, hupChan, svc.Hierarchy, deps.Logger)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.Bus.Wait()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func buildServices(deps *Dependencies) *Services {
	cfg := deps.Config
	lg := deps.Logger

	hierarchy := dept.NewHierarchy(deptPostgres.NewDeptRepository(deps.DB), cfg.DataScope.DeptIndexTTL, lg)
	scope := datascope.NewResolver(
		datascopePostgres.NewScopeRepository(deps.Gorm),
		hierarchy,
		cfg.Security.SuperuserRoleCode,
		lg,
		datascope.WithCustomIncludesChildren(cfg.DataScope.CustomIncludesChildren),
	)

	sessions := session.NewService(
		sessionPostgres.NewSessionRepository(deps.Gorm),
		sessionPostgres.NewSettingRepository(deps.Gorm),
		deps.Bus,
		scope,
		session.Config{
			LoginMode:        cfg.Session.LoginMode,
			LastSeenThrottle: cfg.Session.LastSeenThrottle,
		},
		lg,
	)

	authRepo := authPostgres.NewRepository(deps.Gorm)
	codec := auth.NewTokenCodec(cfg.Security.JWTSecret)
	authService := auth.NewService(authRepo, codec, sessions, cfg.Security.AccessTokenDuration, cfg.Security.SuperuserRoleCode, lg)
	checker := auth.NewPermissionChecker(authRepo, cfg.Security.SuperuserRoleCode)

	return &Services{
		Codec:     codec,
		Auth:      authService,
		Sessions:  sessions,
		Scope:     scope,
		Hierarchy: hierarchy,
		Users:     user.NewService(userPostgres.NewRepository(deps.Gorm), lg),
		RBAC:      auth.NewRBACAuthorization(checker, lg),
	}
}

// invalidator is implemented by caches that can be dropped on demand.
type invalidator interface {
	Invalidate()
}

// watchReload drops the department index on every SIGHUP so edits made outside
// this process are picked up before the TTL expires.
func watchReload(ctx context.Context, sigs <-chan os.Signal, cache invalidator, lg *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			cache.Invalidate()
			lg.Info("department index invalidated", "signal", sig)
		}
	}
}

func setupRoutes(deps *Dependencies) *Services {
	cfg := deps.Config
	svc := buildServices(deps)
	base := transport.NewBaseHandler(deps.Logger)

	realtime.Subscribe(deps.Bus, deps.Notifier)

	var spec *swagger.Spec
	if cfg.Server.OpenAPIPath != "" {
		loaded, err := swagger.LoadSpec(context.Background(), cfg.Server.OpenAPIPath)
		if err != nil {
			deps.Logger.Warn("openapi spec not served", "path", cfg.Server.OpenAPIPath, "error", err)
		} else {
			spec = loaded
		}
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metrics.Init()
		metricsPath = cfg.Observability.Metrics.Path
	}

	realtimeHandler := realtime.NewHandler(base, deps.Notifier, svc.Codec, svc.Sessions, deps.Bus, realtime.HandlerConfig{
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		ReadLimit:      cfg.Realtime.ReadLimit,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	})
	loginLimiter := middleware.NewIPRateLimiter(cfg.Security.LoginRateLimit.PerSecond, cfg.Security.LoginRateLimit.Burst)
	trustedProxies, err := cfg.Server.TrustedProxyNets()
	if err != nil {
		deps.Logger.Error("trusted proxies ignored, forwarding headers will not be honoured", "error", err)
		trustedProxies = nil
	}

	rest.RegisterAllRoutes(deps.Router, rest.Routes{
		DB:              deps.DB.DB,
		Logger:          deps.Logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TrustedProxies:  trustedProxies,
		MetricsPath:     metricsPath,
		Spec:            spec,
		Authenticator:   svc.Auth,
		RBAC:            svc.RBAC,
		LoginLimiter:    loginLimiter,
		AuthHandler:     auth.NewHandler(svc.Auth, deps.Logger),
		UserHandler:     user.NewHandler(svc.Users, deps.Logger),
		SessionHandler:  session.NewHandler(base, svc.Sessions),
		RealtimeHandler: realtimeHandler,
		Connections:     deps.Notifier,
	})
	return svc
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	lg := logger.L()
	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		Gorm:     gormDB,
		Router:   chi.NewRouter(),
		Bus:      events.NewEventBus(lg),
		Notifier: realtime.NewNotifier(lg),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
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

// initGorm shares the sqlx connection pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
}
