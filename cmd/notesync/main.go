// Command notesync runs the offline-first notes sync daemon and its
// maintenance tasks.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/notetaken-sync/internal/app"
	"github.com/heartmarshall/notetaken-sync/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "notesync",
	Short:         "Offline-first notes sync daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon and its local HTTP API",
	Long: `Run the sync daemon. It hydrates from the local cache, signs in the
account named by sync.user_id (if any) and serves the local HTTP API until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := app.NewLogger(cfg.Log)
		return app.Run(cmd.Context(), cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to the remote database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return app.Migrate(cmd.Context(), cfg, app.NewLogger(cfg.Log))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), app.BuildVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the YAML config file (default $CONFIG_PATH or ./config.yaml)")

	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadFile(configPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
