package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"nodeflow/pkg/db"
	"nodeflow/services/api"
	"nodeflow/services/supervisor"
	"nodeflow/services/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve the workflow and run API under /api/v1 and Prometheus metrics under
/metrics. Workflows and run records are kept in PostgreSQL when DATABASE_URL
is set, otherwise in memory.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogger(os.Stdout)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	comp, err := newComponents(reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := comp.storage.Close(); err != nil {
			slog.Error("Failed to close storage", "error", err)
		}
	}()

	var (
		store   workflow.Store
		supOpts = []supervisor.Option{supervisor.WithLogger(slog.Default())}
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, db.Config{URL: cfg.DatabaseURL, PingTimeout: 5 * time.Second})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			return err
		}
		defer pool.Close()

		// Initialize database schema and seed data
		if err := workflow.InitDB(ctx, pool); err != nil {
			slog.Error("Failed to initialize database", "error", err)
			return err
		}
		runs := supervisor.NewRunRepository(pool)
		if err := runs.InitSchema(ctx); err != nil {
			slog.Error("Failed to initialize run records", "error", err)
			return err
		}
		store = workflow.NewRepository(pool)
		supOpts = append(supOpts, supervisor.WithRecorder(runs))
	} else {
		slog.Warn("DATABASE_URL not set, keeping workflows in memory")
		mem := workflow.NewMemoryStore()
		if err := mem.Save(ctx, workflow.SampleGraph()); err != nil {
			return err
		}
		store = mem
	}

	sup := supervisor.New(comp.engine, supOpts...)
	workflowService := api.NewService(store, comp.registry, sup, api.WithRunDefaults(supervisor.StartOptions{
		StorageType:  cfg.Storage.Type,
		StoragePath:  cfg.Storage.Path,
		TickInterval: cfg.TickInterval,
	}))

	// setup router
	mainRouter := mux.NewRouter()
	mainRouter.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	workflowService.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handlers.CombinedLoggingHandler(os.Stderr, corsHandler),
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", cfg.ListenAddr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("Server error", "error", err)
		sup.Shutdown(ctx)
		return err

	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
		if err := sup.Shutdown(ctx); err != nil {
			slog.Error("Could not stop runs gracefully", "error", err)
		}
	}
	return nil
}
