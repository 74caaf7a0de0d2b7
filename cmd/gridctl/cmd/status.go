package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show grid-wide status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient()

		data, err := client.Get("/api/v1/grid/status")
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			cmd.Println(string(data))
			return nil
		}

		var status struct {
			TotalJobs     int     `json:"totalJobs"`
			PendingJobs   int     `json:"pendingJobs"`
			CompletedJobs int     `json:"completedJobs"`
			FailedJobs    int     `json:"failedJobs"`
			ActiveNodes   int     `json:"activeNodes"`
			TotalScanned  int64   `json:"totalScanned"`
			TotalErrors   int64   `json:"totalErrors"`
			ErrorRate     float64 `json:"errorRate"`
			PoolSize      int     `json:"poolSize"`
		}
		if err := json.Unmarshal(data, &status); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		cmd.Printf("Jobs:      %d total, %d pending, %d completed, %d failed\n",
			status.TotalJobs, status.PendingJobs, status.CompletedJobs, status.FailedJobs)
		cmd.Printf("Nodes:     %d active\n", status.ActiveNodes)
		cmd.Printf("Scans:     %d scanned, %d errors (%.2f%% error rate)\n",
			status.TotalScanned, status.TotalErrors, status.ErrorRate*100)
		cmd.Printf("Egress:    %d identities\n", status.PoolSize)
		return nil
	},
}
