// Command netsync runs the authoritative server, a headless predicting client, or renders a
// recorded session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"driftpursuit/netsync/internal/config"
	"driftpursuit/netsync/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "netsync",
		Short:         "Real-time state synchronisation over websockets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var envFile string
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		//1.- A missing dotenv file is normal; the process environment still applies.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	}

	rootCmd.AddCommand(serverCmd(), clientCmd(), replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netsync: %s\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the rotating logger for service.
func setup(service string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging, service)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise logger: %w", err)
	}
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func frameRate(cfg *config.Config) float64 {
	return float64(1e9) / float64(cfg.Sync.FrameInterval)
}
