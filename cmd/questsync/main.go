package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/questsync/internal/client"
	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
)

var (
	cfgPath  string
	logLevel string

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "questsync",
	Short: "Quest progress tracking with reliable saves",
	Long: `Questsync tracks quest completion against a drifting catalog and
guarantees saves survive endpoint outages through a durable local queue.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgPath).Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		logger, err = client.NewLogger(&cfg.Log)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Config file path (default: questsync.json, ~/.config/questsync/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
