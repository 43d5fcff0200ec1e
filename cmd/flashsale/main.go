package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/cimillas/flashsale/internal/config"
	"github.com/cimillas/flashsale/internal/logging"
)

const (
	flagDatabaseURL  = "database-url"
	flagLogLevel     = "log-level"
	flagListenAddr   = "listen-addr"
	flagRedisAddr    = "redis-addr"
	flagKafkaBrokers = "kafka-brokers"
	flagCORSOrigins  = "cors-origins"
	flagCurrency     = "currency"
)

// cli carries what PersistentPreRunE resolved to every subcommand.
type cli struct {
	cfg    config.Config
	logger *zap.Logger
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "flashsale: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	state := &cli{logger: zap.NewNop()}
	cmd := &cobra.Command{
		Use:           "flashsale",
		Short:         "Flash-sale reservations with idempotent payment settlement",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = state.logger.Sync()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "", "PostgreSQL connection string")
	flags.String(flagLogLevel, "", "log level (debug, info, warn, error)")
	flags.String(flagCurrency, "", "store currency payments must match")

	cmd.AddCommand(
		newServeCommand(state),
		newMigrateCommand(state),
		newSeedCommand(state),
		newSweepCommand(state),
		newReconcileCommand(state),
		newPruneCommand(state),
	)
	return cmd
}

// load resolves configuration from flags, FLASHSALE_* variables and the
// nearest .env file, then builds the logger.
func (c *cli) load(cmd *cobra.Command) error {
	v, dotenv, err := config.NewViper()
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr == nil && f.Name != "help" {
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("bind flags: %w", bindErr)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	if dotenv != "" {
		logger.Debug("loaded env file", zap.String("path", dotenv))
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}
