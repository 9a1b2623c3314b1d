// Command daod runs the DAO application behind a gRPC endpoint for a
// consensus engine to drive, and inspects its genesis, state and events.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/blockberries/dao/config"
)

const programName = "daod"

var (
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
)

func slogPrintf(format string, v ...any) {
	logger.Info(fmt.Sprintf(format, v...), "component", programName)
}

func newLogger(c config.LogConfig) (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level < slog.LevelInfo}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func rootCommand() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:           programName,
		Short:         "Community treasury DAO application daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = newLogger(cfg.Log)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: <home>/daod.yaml)")
	flags.String("home", config.DefaultHome, "daemon home directory")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	for key, flag := range map[string]string{
		config.KeyHome:      "home",
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
	} {
		// Lookup cannot fail for flags defined above.
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(serveCommand(v))
	root.AddCommand(genesisCommand())
	root.AddCommand(stateCommand())
	root.AddCommand(eventsCommand())
	root.AddCommand(versionCommand())
	return root
}

func main() {
	// Replaced once the config is loaded.
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	// Configure max processes with our logger wrapper, toss undo func
	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
