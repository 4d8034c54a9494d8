package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/rwdlab/rwdsim/internal/cohort/api"
	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/cohort/infrastructure"
	"github.com/rwdlab/rwdsim/internal/pipeline"
	"github.com/rwdlab/rwdsim/internal/shared/auth"
	"github.com/rwdlab/rwdsim/internal/shared/config"
	"github.com/rwdlab/rwdsim/internal/shared/database"
	"github.com/rwdlab/rwdsim/internal/shared/events"
	"github.com/rwdlab/rwdsim/internal/shared/metrics"
	secmiddleware "github.com/rwdlab/rwdsim/internal/shared/middleware"
	"github.com/rwdlab/rwdsim/internal/warehouse"
)

// App holds the server's wired dependencies. Database, event store and
// warehouse are all optional: the server degrades to in-memory storage and
// no event publishing when they are unreachable.
type App struct {
	Config    *config.Config
	DB        *database.DB
	Bus       events.Bus
	Warehouse *warehouse.Exporter
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app := &App{Config: cfg, Bus: events.NoopBus{}}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Warn().Err(err).Msg("database not available, using in-memory storage")
	} else {
		app.DB = db
		defer db.Close()
		if err := database.Migrate(ctx, db.Pool); err != nil {
			log.Warn().Err(err).Msg("migration failed")
		}
	}

	bus, err := events.NewBus(cfg.EventStore)
	if err != nil {
		log.Warn().Err(err).Msg("event store not available, run events disabled")
	} else {
		app.Bus = bus
		defer bus.Close()
	}

	if cfg.Warehouse.Host != "" {
		exporter, err := warehouse.New(ctx, cfg.Warehouse)
		if err != nil {
			log.Warn().Err(err).Msg("warehouse not available, publishing disabled")
		} else {
			app.Warehouse = exporter
			defer exporter.Close()
			if err := exporter.EnsureSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure warehouse schema")
			}
		}
	}

	var repo domain.Repository
	if app.DB != nil {
		repo = infrastructure.NewPostgresRepository(app.DB)
	} else {
		repo = infrastructure.NewMemoryRepository()
	}

	runner := pipeline.NewRunner(log)

	var publisher api.Publisher
	if app.Warehouse != nil {
		publisher = app.Warehouse
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.RateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst))
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth.JWTSecret))
		}
		handler := api.NewHandler(repo, runner, app.Bus, publisher)
		r.Mount("/runs", handler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Bool("database", app.DB != nil).
		Bool("warehouse", app.Warehouse != nil).
		Msg("rwdsim API listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	log.Info().Msg("server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if _, ok := app.Bus.(events.NoopBus); !ok {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		if app.Warehouse != nil {
			if err := app.Warehouse.Health(r.Context()); err != nil {
				checks["warehouse"] = "not ready: " + err.Error()
			} else {
				checks["warehouse"] = "ready"
			}
		} else {
			checks["warehouse"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
