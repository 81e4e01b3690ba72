package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulatePriceA float64
	simulatePriceB float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-event",
	Short: "Push one artificial quote pair through the alert path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePriceA <= 0 || simulatePriceB <= 0 {
			return errors.New("--price-a and --price-b must be greater than 0")
		}

		return getApp().SimulateEvent(cmd.Context(), simulatePriceA, simulatePriceB)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePriceA, "price-a", 0, "Price on the first exchange")
	simulateCmd.Flags().Float64Var(&simulatePriceB, "price-b", 0, "Price on the second exchange")
}
