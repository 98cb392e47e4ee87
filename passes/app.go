package passes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"github.com/stampably/walletpass/internal/middleware"
	"github.com/stampably/walletpass/passes/models"
)

// App is the pass service application; it wires the repository, the
// service and the HTTP server, and owns their lifecycle.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "walletpass"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))

	// Choose repository backend: pg for runtime, mem for local dev and tests.
	var repository *Repository
	switch backend := getenv("REPO_BACKEND", "pg"); backend {
	case "pg":
		dsn := getenv("DB_DSN", "")
		if dsn == "" {
			return fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		repository = NewPGRepository(db)
	case "mem":
		repository = NewRepository()
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", backend)
	}

	service := NewService(repository, a.config, a.logger)

	api := NewAPI(service)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/-/wallet-health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		issues := service.WalletHealth(ctx)
		w.Header().Set("Content-Type", "application/json")
		if len(issues) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{"issues": issues})
	})
	router.Post("/dev/cards", func(w http.ResponseWriter, r *http.Request) {
		var card models.CardRecord
		if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := service.SeedCard(ctx, &card); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(card)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler: router,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	a.srv.Shutdown(context.Background())

	a.wg.Wait()

	a.logger.Info("app stopped")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
