package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"rxreader/internal/costtracker"
	"rxreader/internal/models"
	"rxreader/internal/store"
)

var statusAsJSON bool

// statusCmd shows the current state of a job, mirroring the HTTP status
// endpoint for operators working from a shell.
var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show the status of a prescription job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		view, err := appInstance.Jobs.GetStatus(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("job %s not found", args[0])
			}
			return fmt.Errorf("failed to load job %s: %w", args[0], err)
		}

		if statusAsJSON {
			return printJSON(os.Stdout, view)
		}

		fmt.Printf("Job:     %s\n", view.JobID)
		fmt.Printf("Status:  %s\n", renderStatus(view.Status))
		if view.State != "" {
			fmt.Printf("State:   %s\n", view.State)
		}
		if view.Score != "" {
			fmt.Printf("Score:   %s\n", view.Score)
		}
		if view.Message != "" {
			fmt.Printf("Message: %s\n", view.Message)
		}
		if view.Error != nil {
			fmt.Printf("Error:   %s: %s\n", color.RedString(view.Error.Code), view.Error.Message)
		}
		fmt.Printf("Updated: %s\n", view.UpdatedAt.Format("2006-01-02 15:04:05"))

		if view.PrescriptionData != "" {
			fmt.Println("\nExtraction:")
			fmt.Println(view.PrescriptionData)
		}

		if len(view.Usage) > 0 {
			fmt.Println("\nModel usage:")
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Stage", "Input Tokens", "Output Tokens", "Cached Tokens"})
			table.SetBorder(true)
			var in, out, cached int
			for _, u := range view.Usage {
				table.Append([]string{
					u.Stage,
					strconv.Itoa(u.InputTokens),
					strconv.Itoa(u.OutputTokens),
					strconv.Itoa(u.CachedTokens),
				})
				in += u.InputTokens
				out += u.OutputTokens
				cached += u.CachedTokens
			}
			table.SetFooter([]string{"Total", strconv.Itoa(in), strconv.Itoa(out), strconv.Itoa(cached)})
			table.Render()

			cost := costtracker.DefaultEstimator().Estimate(view.Usage)
			fmt.Printf("Estimated cost: $%.4f\n", cost)
		}
		return nil
	},
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderStatus(status models.JobStatus) string {
	switch status {
	case models.JobStatusCompleted:
		return color.GreenString(string(status))
	case models.JobStatusFailed:
		return color.RedString(string(status))
	case models.JobStatusProcessing:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusAsJSON, "json", false, "print the raw status response as JSON")
}
