package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var simulateAttackCmd = &cobra.Command{
	Use:   "simulate-attack",
	Short: "Rehearse an oracle/AMM price-manipulation attack against a running instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().SimulateAttack(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
