package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sessionedit/internal/backend"
	"github.com/sessionedit/internal/config"
	"github.com/sessionedit/internal/handler"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/metrics"
	"github.com/sessionedit/internal/middleware"
	"github.com/sessionedit/internal/render"
	"github.com/sessionedit/internal/repository"
	"github.com/sessionedit/internal/session"
	"github.com/sessionedit/internal/startup"
	"github.com/sessionedit/internal/storage"
	"github.com/sessionedit/internal/storage/devstore"
	"github.com/sessionedit/internal/storage/memory"
	"github.com/sessionedit/internal/ws"
)

func main() {
	logger.SetPrefix("editor")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting editor service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if *dev {
		embeddedDB, err := startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL() != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 1

		pool, err = startup.ConnectDBWithRetry(rootCtx, poolCfg, 60*time.Second, "")
		if err != nil {
			logger.Errorf("database: %v", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := startup.RunMigrations(rootCtx, pool); err != nil {
			logger.Errorf("migrations: %v", err)
			os.Exit(1)
		}
		logger.Info("database connected, migrations applied")
	} else {
		logger.Info("DATABASE_URL not set: save journal disabled")
	}
	if *migrate && !*dev {
		return
	}

	m := metrics.New()

	store, err := openSnapshotStore(rootCtx, cfg, pool)
	if err != nil {
		logger.Errorf("snapshot store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	var journal session.Journal
	if pool != nil {
		journal = repository.NewSaveLogRepository(pool)
	}

	// Breaker общий: сервер чанков один на все сессии.
	breaker := backend.NewBreaker("chunk-server", cfg.Backend.BreakerFailures, cfg.Backend.BreakerCooldown, m)
	newBackend := func() (session.Backend, error) {
		return backend.NewClient(cfg.Backend.URL, backend.Options{
			Timeout: cfg.Backend.Timeout,
			Breaker: breaker,
			Metrics: m,
		})
	}

	// Хаб и менеджер ссылаются друг на друга: хаб спрашивает состояние у менеджера,
	// менеджер шлёт события в хаб.
	var sessions *session.Manager
	hub := ws.NewHub(cfg.MaxWSConnections, func(ctx context.Context, id string) (any, error) {
		return handler.StateFunc(sessions)(ctx, id)
	}, m)
	sessions = session.NewManager(session.ManagerConfig{
		NewBackend: newBackend,
		Store:      store,
		TTL:        cfg.Snapshot.TTL,
		Journal:    journal,
		Metrics:    m,
		Notifier:   hub,
		Renderer:   render.New(),
	})

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup
	bgWg.Add(3)
	go func() {
		defer bgWg.Done()
		hub.Run(hubCtx)
	}()
	go func() {
		defer bgWg.Done()
		sessions.Run(rootCtx, time.Minute, cfg.Snapshot.IdleEvict)
	}()
	go func() {
		defer bgWg.Done()
		sweepSnapshots(rootCtx, store, 10*time.Minute)
	}()

	editorH := handler.NewEditorHandler(cfg, sessions)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(cfg)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket и выгрузку архивов: upgrade требует http.Hijacker, zip уже сжат.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") || req.URL.Path == "/api/export" {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Unresolved-Spans"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Handle("/metrics", m.Handler())
	handler.Mount(r, handler.Routes{
		Editor:   editorH,
		WS:       wsH,
		Config:   configH,
		Sessions: sessions,
		Limiter:  middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	})

	if info, err := os.Stat(cfg.WebDir); cfg.WebDir != "" && err == nil && info.IsDir() {
		r.Get("/*", spaHandler(cfg.WebDir))
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s (chunk server %s, snapshots %s)", cfg.ServerAddr, cfg.Backend.URL, cfg.Snapshot.Store)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	rootCancel()
	bgWg.Wait()
	logger.Info("hub and background workers stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// openSnapshotStore выбирает хранилище снимков по SNAPSHOT_STORE.
func openSnapshotStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (storage.SnapshotStore, error) {
	switch cfg.Snapshot.Store {
	case "redis":
		rdb, err := startup.ConnectRedisWithRetry(ctx, cfg.Snapshot.RedisURL, 60*time.Second, "")
		if err != nil {
			return nil, err
		}
		return rdb, nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("SNAPSHOT_STORE=postgres requires DATABASE_URL or -dev")
		}
		return devstore.New(repository.NewSnapshotRepository(pool)), nil
	default:
		logger.Info("snapshots kept in memory: sessions do not survive a restart")
		return memory.New(), nil
	}
}

// sweepSnapshots удаляет просроченные снимки там, где хранилище само их не вытесняет (Redis вытесняет по TTL).
func sweepSnapshots(ctx context.Context, store storage.SnapshotStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		switch s := store.(type) {
		case *memory.Client:
			if n := s.Sweep(); n > 0 {
				logger.Debugf("snapshot sweep: %d expired", n)
			}
		case *devstore.Client:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := s.Sweep(sweepCtx)
			cancel()
			if err != nil {
				logger.Errorf("snapshot sweep: %v", err)
			} else if n > 0 {
				logger.Debugf("snapshot sweep: %d expired", n)
			}
		default:
			return
		}
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func spaHandler(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Open(path); err != nil {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		} else {
			f.Close()
			fileServer.ServeHTTP(w, r)
		}
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5433
		user     = "editor"
		password = "editor_secret"
		database = "sessionedit"
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
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime-editor")),
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
