package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rxreader/internal/app"
	"rxreader/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "rxreader",
	Short: "Prescription extraction job orchestrator",
	Long: `rxreader extracts structured data from prescription images through a
pipeline of AI inference calls, with an automated quality gate and a
bounded correction loop. Run "serve" for the HTTP API, "worker" for the
background processor, or "process" for a one-shot local run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		appInstance, err := app.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

// GetAppFromContext retrieves the app instance stored by PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized in command context")
	}
	return appInstance, nil
}
