package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nodeflow/services/engine"
	"nodeflow/services/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Run a workflow document locally",
	Long: `Run a JSON or YAML workflow document in-process. Each pass or tick that
produces new results is printed to stdout as one JSON line; logs go to stderr.
The run ends when it stops itself, when --duration elapses, or on interrupt.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringArray("var", nil, "Set a workflow variable (key=value, value parsed as YAML)")
	runCmd.Flags().Duration("duration", 0, "Stop the run after this long (0 waits for the run to end)")
	runCmd.Flags().String("storage-type", "", "Storage type for storage nodes (defaults to the configured type)")
	runCmd.Flags().String("storage-path", "", "Storage path for storage nodes")
	runCmd.Flags().Duration("tick", 0, "Tick interval (defaults to the configured interval)")
	rootCmd.AddCommand(runCmd)
}

// parseVars turns key=value pairs into typed variables, so "--var limit=3"
// yields an int and "--var city=Sydney" a string.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		vars[key] = value
	}
	return vars, nil
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	setupLogger(os.Stderr)

	varPairs, _ := cmd.Flags().GetStringArray("var")
	duration, _ := cmd.Flags().GetDuration("duration")
	storageType, _ := cmd.Flags().GetString("storage-type")
	storagePath, _ := cmd.Flags().GetString("storage-path")
	tick, _ := cmd.Flags().GetDuration("tick")

	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}
	if storageType == "" {
		storageType, storagePath = cfg.Storage.Type, cfg.Storage.Path
	}

	g, err := workflow.LoadFile(args[0])
	if err != nil {
		return err
	}

	comp, err := newComponents(nil)
	if err != nil {
		return err
	}
	defer comp.storage.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	run, err := comp.engine.Prepare(g, engine.RunOptions{
		RunID:        uuid.NewString(),
		Variables:    vars,
		StorageType:  storageType,
		StoragePath:  storagePath,
		TickInterval: tick,
		OnSnapshot: func(snap engine.Snapshot) {
			if err := enc.Encode(snap); err != nil {
				slog.Error("Failed to write snapshot", "error", err)
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run.Start(ctx); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-run.Done():
	case <-timeout:
		slog.Info("Run duration elapsed", "duration", duration)
	case <-ctx.Done():
		slog.Info("Interrupted")
	}

	if err := run.Stop(); err != nil {
		slog.Warn("Dispose reported errors", "error", err)
	}
	if run.State() == engine.StateErrored {
		return fmt.Errorf("run %s failed: %w", run.ID(), run.Err())
	}
	return nil
}
