package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cbcr-finder/internal/ledger"
)

// newLedgerCmd creates the 'ledger' command group.
func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the fetch ledger",
	}

	var (
		scope  string
		asJSON bool
	)
	show := &cobra.Command{
		Use:   "show",
		Short: "Print every recorded fetch attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			l, err := ledger.Load(cmd.Context(), appInstance.Store(), appInstance.LedgerPath(scope))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, l.Rows())
			}
			data, err := l.Encode()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}
	show.Flags().StringVar(&scope, "scope", "", "scope whose ledger to print")
	show.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON instead of CSV")
	cmd.AddCommand(show)
	return cmd
}
