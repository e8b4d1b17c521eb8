package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rxreader/internal/clix"
	"rxreader/internal/models"
)

// processCmd runs a single job to completion in-process, without the
// queue. Useful for local testing and one-off extractions.
var processCmd = &cobra.Command{
	Use:   "process [image]",
	Short: "Process a single prescription image synchronously",
	Long: `Creates a job for the given image, runs the full extraction pipeline
in the current process, and prints the terminal result as JSON. The job
record is persisted in the configured store like any queued job.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		req, err := clix.ParseSubmitRequest(cmd.Flags(), args[0])
		if err != nil {
			return err
		}

		view, err := appInstance.Jobs.SubmitLocal(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		if err := appInstance.Engine.Run(cmd.Context(), view.JobID); err != nil {
			return fmt.Errorf("failed to process job %s: %w", view.JobID, err)
		}

		final, err := appInstance.Jobs.GetStatus(cmd.Context(), view.JobID)
		if err != nil {
			return fmt.Errorf("failed to load result for job %s: %w", view.JobID, err)
		}

		if err := printJSON(os.Stdout, final); err != nil {
			return err
		}

		if final.Status == models.JobStatusFailed {
			fmt.Fprintln(os.Stderr, color.RedString("job %s failed", final.JobID))
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
	clix.RegisterSubmitFlags(processCmd.Flags())
}
