package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"guardian-amm/internal/app"
)

var (
	showLimit       int
	showFromStorage bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:       showLimit,
			FromStorage: showFromStorage,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of events to display")
	showCmd.Flags().BoolVar(&showFromStorage, "from-storage", false, "Read from the Postgres audit log instead of the live event ring")
}
