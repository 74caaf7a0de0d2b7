package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List worker nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient()

		data, err := client.Get("/api/v1/nodes")
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			cmd.Println(string(data))
			return nil
		}

		var nodes []struct {
			ID            string `json:"ID"`
			State         string `json:"State"`
			ScanCount     int64  `json:"ScanCount"`
			ErrorCount    int64  `json:"ErrorCount"`
			CurrentDomain string `json:"CurrentDomain"`
		}
		if err := json.Unmarshal(data, &nodes); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSCANS\tERRORS\tCURRENT")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				n.ID, n.State, n.ScanCount, n.ErrorCount, n.CurrentDomain)
		}
		return w.Flush()
	},
}
