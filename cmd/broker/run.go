package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/broker/pkg/cli"
	"mercator-hq/broker/pkg/config"
	"mercator-hq/broker/pkg/server"
	"mercator-hq/broker/pkg/telemetry"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	directoryFile string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the broker server",
	Long: `Start the broker server with the specified configuration.

The server authenticates each call against the directory, applies the
configured rate limits, dispatches admitted requests and records them in the
request log.

Examples:
  # Start with default config
  broker run

  # Start with custom config
  broker run --config /etc/broker/config.yaml

  # Override listen address
  broker run --listen 0.0.0.0:8080

  # Validate config and directory without starting the server
  broker run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.directoryFile, "directory", "", "override directory file")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and directory without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if runFlags.dryRun {
		return dryRun(cmd, cfg)
	}

	tel, err := telemetry.New(cfg.Telemetry, telemetry.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})
	if err != nil {
		return cli.NewConfigError("telemetry", err.Error())
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	comps, err := buildComponents(commandContext(cmd), cfg, tel)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := comps.close(); err != nil {
			slog.Error("failed to close stores", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	ctx, stop := cli.SignalContext(commandContext(cmd))
	defer stop()

	if err := comps.start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	slog.Info("starting broker",
		"version", Version,
		"config", cfgFile,
		"directory", directorySource(cfg.Directory),
		"counters_backend", cfg.Counters.Backend,
		"request_log_backend", cfg.RequestLog.Backend,
		"throttle_enabled", cfg.Throttle.Enabled,
	)
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: /health, readiness: /ready\n")
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s\n", cfg.Telemetry.Metrics.Path)
	}

	srv := server.NewServer(cfg.Server, comps.deps(tel))
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func applyRunFlags(cfg *config.Config) {
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.directoryFile != "" {
		cfg.Directory.FilePath = runFlags.directoryFile
	}
}

// dryRun checks the directory document without opening the stores. With Git
// sync enabled this clones or fetches the repository.
func dryRun(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	_, _, commit, err := loadDirectory(commandContext(cmd), cfg.Directory)
	if err != nil {
		field := "directory.file_path"
		if cfg.Directory.Git.Enabled {
			field = "directory.git"
		}
		return cli.NewConfigError(field, err.Error())
	}
	fmt.Fprintln(out, "✓ Configuration valid")
	if commit != "" {
		fmt.Fprintf(out, "✓ Directory %s valid at commit %.8s\n", directorySource(cfg.Directory), commit)
	} else {
		fmt.Fprintf(out, "✓ Directory %s valid\n", directorySource(cfg.Directory))
	}
	return nil
}

func directorySource(cfg config.DirectoryConfig) string {
	if cfg.Git.Enabled {
		return fmt.Sprintf("%s@%s:%s", cfg.Git.Repository, cfg.Git.Branch, cfg.Git.Path)
	}
	return cfg.FilePath
}
