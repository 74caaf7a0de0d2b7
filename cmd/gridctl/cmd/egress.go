package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	flagEgressPort    int
	flagEgressRegion  string
	flagEgressCarrier string
)

var egressCmd = &cobra.Command{
	Use:   "egress",
	Short: "Manage the egress rotation pool",
}

var egressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List egress identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient()

		data, err := client.Get("/api/v1/egress")
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			cmd.Println(string(data))
			return nil
		}

		var resp struct {
			Identities []struct {
				Address string `json:"address"`
				Port    int    `json:"port"`
				Region  string `json:"region"`
				Carrier string `json:"carrier"`
			} `json:"identities"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tPORT\tREGION\tCARRIER")
		for _, id := range resp.Identities {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id.Address, id.Port, id.Region, id.Carrier)
		}
		return w.Flush()
	},
}

var egressAddCmd = &cobra.Command{
	Use:   "add ADDRESS",
	Short: "Add an egress identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		body := map[string]any{
			"address": args[0],
			"port":    flagEgressPort,
			"region":  flagEgressRegion,
			"carrier": flagEgressCarrier,
		}
		if _, err := client.Post("/api/v1/egress", body); err != nil {
			return err
		}

		cmd.Printf("added %s:%d (%s, %s)\n", args[0], flagEgressPort, flagEgressRegion, flagEgressCarrier)
		return nil
	},
}

var egressRemoveCmd = &cobra.Command{
	Use:   "remove ADDRESS",
	Short: "Remove an egress identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		if err := client.Delete("/api/v1/egress/" + args[0]); err != nil {
			return err
		}

		cmd.Printf("removed %s\n", args[0])
		return nil
	},
}

func init() {
	egressAddCmd.Flags().IntVar(&flagEgressPort, "port", 8080, "Proxy port")
	egressAddCmd.Flags().StringVar(&flagEgressRegion, "region", "", "Region code (e.g. us-east)")
	egressAddCmd.Flags().StringVar(&flagEgressCarrier, "carrier", "broadband", "Carrier class: mobile or broadband")
	_ = egressAddCmd.MarkFlagRequired("region")

	egressCmd.AddCommand(egressListCmd)
	egressCmd.AddCommand(egressAddCmd)
	egressCmd.AddCommand(egressRemoveCmd)
}
