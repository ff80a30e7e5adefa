package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/obstrace/obstrace/internal/config"
	"github.com/obstrace/obstrace/internal/runtime"
	"github.com/obstrace/obstrace/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obstrace",
		Short: "In-process trace event collector and harvester",
		Long: `obstrace runs a lock-free trace event collector, periodically
harvesting its per-thread buffers and publishing the flattened
result to a notify bus and a Prometheus health endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	if err := cmd.MarkFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "error marking flag required: %v\n", err)
		os.Exit(1)
	}

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	svc, err := runtime.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating runtime: %w", err)
	}

	log.Info("starting obstrace")

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}

	<-ctx.Done()

	log.Info("shutting down obstrace")

	if err := svc.Stop(); err != nil {
		log.WithError(err).Error("error during shutdown")
		return fmt.Errorf("stopping runtime: %w", err)
	}

	log.Info("shutdown complete")

	return nil
}
