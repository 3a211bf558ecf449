package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"nodeflow/pkg/config"
	"nodeflow/services/engine"
	"nodeflow/services/node"
	"nodeflow/services/nodes"
	"nodeflow/services/storage"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "nodeflow",
	Short: "nodeflow runs workflow graphs of typed nodes",
	Long: `nodeflow builds workflow graphs from JSON or YAML documents, runs their nodes in
dependency order, and keeps continuous and triggered nodes ticking until stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
}

func setupLogger(w io.Writer) {
	level, _ := cfg.SlogLevel()
	logHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(logHandler))
}

// components are the process-wide objects shared by every command.
type components struct {
	registry *node.Registry
	storage  *storage.Cache
	engine   *engine.Engine
}

// newComponents builds the registry, storage cache and engine from cfg.
// Metrics are registered with reg when it is non-nil.
func newComponents(reg prometheus.Registerer) (*components, error) {
	deps := nodes.Deps{
		Weather:  nodes.NewOpenMeteoClient(cfg.Weather.BaseURL),
		LLMModel: cfg.OpenAI.Model,
		Logger:   slog.Default(),
	}
	if cfg.OpenAI.APIKey != "" {
		oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		deps.LLM = openai.NewClientWithConfig(oc)
		slog.Info("Initializing OpenAI client", "model", cfg.OpenAI.Model)
	} else {
		slog.Warn("OPENAI_API_KEY not set, llm nodes will report failures")
	}

	registry := node.NewRegistry()
	if err := nodes.RegisterAll(registry, deps); err != nil {
		return nil, fmt.Errorf("register node types: %w", err)
	}

	cache := storage.NewCache(slog.Default())
	eng := engine.NewEngine(registry,
		engine.WithLogger(slog.Default()),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithStorage(cache),
		engine.WithTickInterval(cfg.TickInterval),
	)
	return &components{registry: registry, storage: cache, engine: eng}, nil
}
