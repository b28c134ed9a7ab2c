package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/epistoch/seirsweep/internal/config"
	"github.com/epistoch/seirsweep/internal/engine"
	"github.com/epistoch/seirsweep/internal/logger"
	"github.com/epistoch/seirsweep/internal/model"
	"github.com/epistoch/seirsweep/internal/notify"
	"github.com/epistoch/seirsweep/internal/storage"
	"github.com/epistoch/seirsweep/internal/sweep"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		resume     bool
	)

	cmd := &cobra.Command{
		Use:   "seirsweep",
		Short: "Monte-Carlo sweep of epidemic probability vs. vaccination coverage",
		Long: `seirsweep simulates a stochastic SEIR epidemic as a continuous-time
Markov jump process and sweeps vaccination coverage to estimate, per coverage
value, the probability that an introduced infection grows into a sustained
epidemic and the expected size of that epidemic.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, outPath, resume)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults apply when omitted)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the result table to a file instead of stdout")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume a checkpointed sweep (requires checkpoint.sweep_id)")
	return cmd
}

func run(configPath, outPath string, resume bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	params := model.Params{
		Beta:  cfg.Model.Beta,
		Sigma: cfg.Model.Sigma,
		Gamma: cfg.Model.Gamma,
		N:     cfg.Model.Population,
	}
	logger.Info("model: N=%d I0=%d R0=%.2f critical coverage=%.4f",
		params.N, cfg.Model.InitialInfected, params.R0(), params.CriticalCoverage())

	sweepCfg := sweep.Config{
		Params:       params,
		I0:           cfg.Model.InitialInfected,
		Horizon:      cfg.Sweep.Horizon,
		Replications: cfg.Sweep.Replications,
		Threshold:    cfg.Sweep.Threshold,
		Coverages:    sweep.Coverages(cfg.Sweep.CoverageFrom, cfg.Sweep.CoverageTo, cfg.Sweep.CoverageStep),
		Parallelism:  cfg.Sweep.Parallelism,
		Seed:         cfg.Sweep.Seed,
	}

	var store sweep.Checkpointer
	sweepID := cfg.Checkpoint.SweepID
	if cfg.Checkpoint.Enabled {
		if sweepID == "" {
			if resume {
				return fmt.Errorf("--resume requires checkpoint.sweep_id to identify the sweep to continue")
			}
			sweepID = uuid.NewString()
		}
		db, err := storage.Open(cfg.Checkpoint.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close checkpoint db: %v", err)
			}
		}()
		store, err = storage.New(db, sweepID)
		if err != nil {
			return err
		}
		logger.Info("checkpointing to %s (sweep %s)", cfg.Checkpoint.DBPath, sweepID)
	} else if resume {
		return fmt.Errorf("--resume requires checkpoint.enabled")
	}

	pipeline, err := sweep.New(sweepCfg, buildStepper(cfg.Engine), store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	rows, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep aborted: %w", err)
	}
	elapsed := time.Since(started)
	logger.Info("sweep finished: %d coverage levels in %s", len(rows), elapsed.Round(time.Millisecond))

	table := sweep.FormatTable(rows)
	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(table), 0o644); err != nil {
			return fmt.Errorf("failed to write result table: %w", err)
		}
		logger.Info("result table written to %s", outPath)
	} else {
		fmt.Print(table)
	}

	if cfg.Telegram.Enabled {
		if sweepID == "" {
			sweepID = uuid.NewString()
		}
		client, err := notify.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Error("telegram notifier unavailable: %v", err)
			return nil
		}
		if err := client.SendSummary(sweepID, rows, elapsed); err != nil {
			logger.Error("failed to send completion summary: %v", err)
		}
	}
	return nil
}

// buildStepper selects the jump-process algorithm from configuration.
func buildStepper(cfg config.EngineConfig) engine.Stepper {
	if cfg.Method == "direct" {
		return engine.Direct{MaxSteps: cfg.MaxSteps}
	}
	return engine.TauLeap{Epsilon: cfg.Epsilon, MaxSteps: cfg.MaxSteps}
}
