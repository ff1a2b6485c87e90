package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "bridged",
		Short:        "Cross-ledger settlement facilitator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the facilitator daemon",
		RunE:  runDaemon,
	}
	addSharedFlags(runCmd)
	runCmd.Flags().Uint64("value-from", 0, "value ledger backfill start block")
	runCmd.Flags().Uint64("utility-from", 0, "utility ledger backfill start block")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per backfill batch")
	runCmd.Flags().String("value-checkpoint", "./data/value_checkpoint.json", "value ledger checkpoint file path")
	runCmd.Flags().String("utility-checkpoint", "./data/utility_checkpoint.json", "utility ledger checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Duration("confirmation-delay", 30*time.Second, "reorg confirmation grace period")
	runCmd.Flags().Int("event-buffer", 256, "confirmation queue buffer size")
	runCmd.Flags().String("audit-dsn", "", "Postgres DSN for the settlement journal")
	runCmd.Flags().String("audit-path", "./data/settlement_runs.jsonl", "JSONL settlement journal path when no DSN is set")
	root.AddCommand(runCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP transfer API only",
		RunE:  runServe,
	}
	addSharedFlags(serveCmd)
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSharedFlags(cmd *cobra.Command) {
	cmd.Flags().String("value-rpc", "", "value ledger RPC URL")
	cmd.Flags().String("utility-rpc", "", "utility ledger RPC URL")
	cmd.Flags().String("value-gateway", "", "value gateway contract address")
	cmd.Flags().String("utility-gateway", "", "utility gateway contract address")
	cmd.Flags().String("staker", "", "facilitator staking account")
	cmd.Flags().String("staker-passphrase", "", "staking account passphrase")
	cmd.Flags().String("redeemer", "", "facilitator redemption account")
	cmd.Flags().String("redeemer-passphrase", "", "redemption account passphrase")
	cmd.Flags().String("reserve", "", "reserve account funding sender gas")
	cmd.Flags().String("reserve-passphrase", "", "reserve account passphrase")
	cmd.Flags().StringSlice("token", nil, "branded tokens as SYMBOL=uuid (comma-separated)")
	cmd.Flags().Duration("receipt-interval", 3*time.Second, "receipt poll interval")
	cmd.Flags().Int("receipt-attempts", 60, "receipt poll attempts")
	cmd.Flags().String("gas-price", "1000000000", "gas price in wei")
	cmd.Flags().Uint64("gas-limit", 9000000, "gas limit for contract transactions")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("cache-dsn", "", "Postgres DSN for the balance cache")
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
