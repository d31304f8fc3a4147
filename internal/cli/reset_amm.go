package cli

import (
	"github.com/spf13/cobra"
)

var resetAMMCmd = &cobra.Command{
	Use:   "reset-amm",
	Short: "Trigger the restore sequence against a running instance out of band",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().ResetAMM(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}
