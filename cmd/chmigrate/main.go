// Command chmigrate moves GitHub issues and Trello cards into Shortcut and
// keeps the resulting workspace tidy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dataiku/clubhouse-migration/internal/config"
	"github.com/dataiku/clubhouse-migration/internal/debug"
	"github.com/dataiku/clubhouse-migration/internal/telemetry"
)

var (
	cfgFile  string
	logger   *slog.Logger
	closeLog func() error
)

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"project":      "shortcut.project",
	"repo":         "github.repo",
	"organization": "trello.organization",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./chmigrate.yaml or ~/.config/chmigrate/chmigrate.yaml)")
	pf.Bool("dry-run", false, "Run every read and search but write nothing to Shortcut")
	pf.BoolP("verbose", "v", false, "Enable verbose/debug output")
	pf.BoolP("quiet", "q", false, "Suppress non-essential output (warnings and errors only)")
	pf.String("log-file", config.DefaultLogFile, "Append log records to this file (empty disables)")
	pf.String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(githubCmd, trelloCmd, housekeepingCmd, cleanCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:           "chmigrate",
	Short:         "chmigrate - migrate GitHub issues and Trello cards to Shortcut",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
			return err
		}
		if err := config.Initialize(cfgFile); err != nil {
			return err
		}
		if err := bindFlags(cmd); err != nil {
			return err
		}

		debug.SetVerbose(config.GetBool("verbose"))
		debug.SetQuiet(config.GetBool("quiet"))
		l, closeFn, err := debug.NewLogger(debug.LoggerOptions{
			Format: config.GetString("log-format"),
			File:   config.GetString("log-file"),
		})
		if err != nil {
			return err
		}
		logger, closeLog = l, closeFn
		slog.SetDefault(logger)
		if used := config.ConfigFileUsed(); used != "" {
			debug.Logf("using config file %s\n", used)
		}

		if err := telemetry.Init(cmd.Context(), "chmigrate", Version); err != nil {
			logger.Warn("telemetry disabled", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// bindFlags binds the command's own and inherited flags to their config
// keys so that flag > env > file > default.
func bindFlags(cmd *cobra.Command) error {
	var err error
	bind := func(f *pflag.Flag) {
		if err != nil || f.Name == "config" || f.Name == "help" {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		err = config.BindFlag(key, f)
	}
	cmd.InheritedFlags().VisitAll(bind)
	cmd.Flags().VisitAll(bind)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
