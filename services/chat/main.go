package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labwatch/internal/config"
	"github.com/labwatch/internal/handler"
	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/middleware"
	"github.com/labwatch/internal/repository"
	"github.com/labwatch/internal/session"
	"github.com/labwatch/internal/startup"
	"github.com/labwatch/internal/storage"
	"github.com/labwatch/internal/storage/memory"
	"github.com/labwatch/internal/storage/pgstore"
	"github.com/labwatch/internal/ws"
	"github.com/labwatch/migrations"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.SetPrefix("chat")
	logger.Info("starting chat service")

	if err := run(cfg, *dev, *migrate); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, dev, migrateOnly bool) error {
	if dev {
		db, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
		if cfg.Session.Store == config.StoreRedis {
			cfg.Session.Store = config.StorePostgres
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 2

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := startup.ConnectDB(ctx, poolCfg, 60*time.Second)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	err = startup.Migrate(migrateCtx, pool, migrations.Files)
	migrateCancel()
	if err != nil {
		return err
	}
	if migrateOnly {
		return nil
	}

	userRepo := repository.NewUserRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)

	// nobody is connected to a fresh process
	resetCtx, resetCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := userRepo.ResetPresence(resetCtx); err != nil {
		logger.Errorf("reset online status: %v", err)
	}
	resetCancel()
	logger.Info("database connected, migrations applied")

	sessions, err := openSessionStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer sessions.Close()
	if len(cfg.Session.Secrets) == 0 {
		logger.Warnf("SESSION_SECRETS is empty: session cookies are accepted unsigned")
	}
	resolver := session.NewResolver(sessions, cfg.Session.CookieName, cfg.Session.Secrets, cfg.Session.LookupTimeout)

	hub := ws.NewHub(chatRepo, msgRepo, userRepo, ws.Config{
		MaxConnections:    cfg.WS.MaxConnections,
		SendBufferSize:    cfg.WS.SendBufferSize,
		WriteTimeout:      cfg.WS.WriteTimeout,
		HeartbeatInterval: cfg.WS.HeartbeatInterval,
		MaxMessageSize:    cfg.WS.MaxMessageSize,
		FrameRate:         cfg.WS.FrameRate,
		FrameBurst:        cfg.WS.FrameBurst,
	})
	hub.Start(context.Background())

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      newRouter(cfg, hub, resolver),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s (ws %s)", cfg.ServerAddr, cfg.WS.Path)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	// hijacked sockets are not tracked by Shutdown; the hub closes them
	hub.Close()
	logger.Info("hub stopped")
	return serveErr
}

func newRouter(cfg *config.Config, hub *ws.Hub, resolver *session.Resolver) http.Handler {
	wsH := handler.NewWSHandler(hub, cfg.AllowedOrigins())
	configH := handler.NewConfigHandler(cfg)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cookie"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handler.Health(hub))
	r.Get("/api/chat/config", configH.GetChatConfig)
	r.With(middleware.InternalOnly(cfg.InternalSecret)).Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(cfg.HTTPRateLimit))
		r.Use(middleware.SessionAuth(resolver, cfg.Session.CookieName))
		r.Get(cfg.WS.Path, wsH.ServeWS)
	})
	return r
}

func openSessionStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (storage.SessionStore, error) {
	switch cfg.Session.Store {
	case config.StorePostgres:
		logger.Info("session store: postgres")
		return pgstore.New(repository.NewSessionRepository(pool)), nil
	case config.StoreMemory:
		logger.Warnf("session store: memory (sessions must be seeded in-process)")
		return memory.New(), nil
	default:
		logger.Info("session store: redis")
		return startup.ConnectRedis(ctx, cfg.Session.RedisURL, cfg.Session.RedisPrefix, 60*time.Second)
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "labwatch"
		password = "labwatch_secret"
		database = "labwatch"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
