package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var flagPriority int

var enqueueCmd = &cobra.Command{
	Use:   "enqueue DOMAIN [DOMAIN...]",
	Short: "Queue domains for scanning",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		body := map[string]any{
			"domains":  args,
			"priority": flagPriority,
		}
		data, err := client.Post("/api/v1/jobs", body)
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			cmd.Println(string(data))
			return nil
		}

		var resp struct {
			JobIDs []string `json:"jobIds"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		for i, id := range resp.JobIDs {
			cmd.Printf("%s\t%s\n", args[i], id)
		}
		return nil
	},
}

func init() {
	enqueueCmd.Flags().IntVarP(&flagPriority, "priority", "p", 50, "Job priority (0-100)")
}
