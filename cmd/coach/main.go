package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/rally-coach/internal/config"
	"github.com/yourusername/rally-coach/internal/dataset"
	"github.com/yourusername/rally-coach/internal/logger"
	"github.com/yourusername/rally-coach/internal/metrics"
	"github.com/yourusername/rally-coach/internal/service"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	appLogger  *logrus.Logger
	cfg        *config.Config
	coach      *service.Service
)

// shared matchup flags
var (
	flagPlayerA  string
	flagPlayerB  string
	flagWindow   int
	flagAsOf     string
	flagTemplate string
	flagBudget   int
	flagL1Bound  float64
	flagMode     string
	flagEngine   string
	flagTimeout  time.Duration
)

var flagSyncPlayers []string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	for _, cmd := range []*cobra.Command{predictCmd, strategyCmd} {
		cmd.Flags().StringVar(&flagPlayerA, "player-a", "", "Player A: id, exact name, or unique name fragment")
		cmd.Flags().StringVar(&flagPlayerB, "player-b", "", "Player B: id, exact name, or unique name fragment")
		cmd.Flags().IntVar(&flagWindow, "window", 0, "Number of recent matches per player (0 = configured default)")
		cmd.Flags().StringVar(&flagAsOf, "as-of", "", "Only use matches on or before this date (YYYY-MM-DD)")
		cmd.Flags().StringVar(&flagTemplate, "template", "", "Bundled model template name")
		cmd.Flags().StringVar(&flagMode, "mode", "", "Engine mode override: real or mock")
		cmd.Flags().StringVar(&flagEngine, "engine", "", "Engine console path override")
		cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-attempt engine timeout override (e.g. 90s)")
		_ = cmd.MarkFlagRequired("player-a")
		_ = cmd.MarkFlagRequired("player-b")
	}
	strategyCmd.Flags().IntVar(&flagBudget, "budget", 0, "Maximum candidate evaluations (0 = configured default)")
	strategyCmd.Flags().Float64Var(&flagL1Bound, "l1-bound", 0, "Maximum L1 style change per candidate (0 = configured default)")

	syncCmd.Flags().StringSliceVar(&flagSyncPlayers, "player", nil, "Player to sync (repeatable)")
	_ = syncCmd.MarkFlagRequired("player")

	rootCmd.AddCommand(predictCmd, strategyCmd, syncCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "Badminton matchup analysis through probabilistic model verification",
	Long: `Estimates matchup parameters from historical match data, renders a
rally-level probabilistic model, and verifies it with the PAT model checker
(or a deterministic mock) to produce match win probabilities and ranked
tactical adjustments.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict player A's match win probability against player B",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		asOf, err := parseAsOf(flagAsOf)
		if err != nil {
			return err
		}

		result, err := coach.Predict(ctx, service.PredictRequest{
			PlayerA:    flagPlayerA,
			PlayerB:    flagPlayerB,
			Window:     flagWindow,
			AsOf:       asOf,
			Template:   flagTemplate,
			Mode:       flagMode,
			EnginePath: flagEngine,
			Timeout:    flagTimeout,
		})
		if err != nil {
			return err
		}

		fmt.Println("\n=== Match Prediction ===")
		fmt.Printf("Run ID: %s\n", result.RunID)
		fmt.Printf("%s vs %s\n", result.PlayerA, result.PlayerB)
		fmt.Printf("P(%s wins) = %.4f\n", result.PlayerA, result.Probability)
		fmt.Printf("Artifacts: %s\n", result.RunDir)
		return nil
	},
}

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Search serve and rally-style adjustments that improve player A's chances",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		asOf, err := parseAsOf(flagAsOf)
		if err != nil {
			return err
		}

		result, err := coach.Strategy(ctx, service.StrategyRequest{
			PlayerA:    flagPlayerA,
			PlayerB:    flagPlayerB,
			Window:     flagWindow,
			AsOf:       asOf,
			Template:   flagTemplate,
			Budget:     flagBudget,
			L1Bound:    flagL1Bound,
			Mode:       flagMode,
			EnginePath: flagEngine,
			Timeout:    flagTimeout,
		})
		if err != nil {
			return err
		}

		fmt.Println("\n=== Strategy Search Report ===")
		fmt.Printf("Run ID: %s\n", result.RunID)
		fmt.Printf("%s vs %s\n", result.PlayerA, result.PlayerB)
		fmt.Printf("Baseline P(win) = %.4f\n", result.BaselineProbability)
		fmt.Printf("Best P(win)     = %.4f  (delta %+0.4f)\n", result.ImprovedProbability, result.Delta)
		fmt.Printf("Candidates evaluated: %d (dropped: %d)\n", result.Evaluated, result.Dropped)
		fmt.Println("\nTop adjustments:")
		for _, c := range result.Candidates {
			fmt.Printf("  %d. short serve %+0.2f, attack %+0.2f  ->  P(win) = %.4f  (L1 change %.3f)\n",
				c.Rank, c.ServeShortDelta, c.AttackDelta, c.Probability, c.L1Change)
		}
		fmt.Printf("\nArtifacts: %s\n", result.RunDir)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local dataset cache from the remote stats service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if cfg.Data.WebBaseURL == "" {
			return fmt.Errorf("no remote stats service configured; set data.web_base_url")
		}
		source := dataset.NewWebSource(cfg.Data.WebBaseURL, cfg.Data.WebCacheDir, cfg.Data.WebRateLimit, appLogger)

		paths, err := source.Sync(ctx, flagSyncPlayers)
		if err != nil {
			return err
		}

		fmt.Println("\n=== Dataset Sync ===")
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coach %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

func setupDependencies() error {
	appLogger = logger.New(cfg.App.LogLevel)

	adapter := dataset.NewCSVAdapter(cfg.Data.PlayersPath, cfg.Data.MatchesPath)
	coach = service.New(cfg, appLogger, adapter)

	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path)
		appLogger.WithField("port", cfg.Metrics.Port).Info("Metrics endpoint started")
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	asOf, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date %q: expected YYYY-MM-DD", value)
	}
	// Include the whole day.
	return asOf.Add(24*time.Hour - time.Second), nil
}
