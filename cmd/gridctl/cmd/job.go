package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job JOB_ID",
	Short: "Show a single scan job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		data, err := client.Get("/api/v1/jobs/" + args[0])
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			cmd.Println(string(data))
			return nil
		}

		var job struct {
			ID           string `json:"ID"`
			Domain       string `json:"Domain"`
			Priority     int    `json:"Priority"`
			Status       string `json:"Status"`
			Retries      int    `json:"Retries"`
			ErrorMessage string `json:"ErrorMessage"`
		}
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		cmd.Printf("Domain:    %s\n", job.Domain)
		cmd.Printf("Status:    %s\n", job.Status)
		cmd.Printf("Priority:  %d\n", job.Priority)
		cmd.Printf("Retries:   %d\n", job.Retries)
		if job.ErrorMessage != "" {
			cmd.Printf("Error:     %s\n", job.ErrorMessage)
		}
		return nil
	},
}
