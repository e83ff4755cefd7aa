package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/blacklist"
)

// newBlacklistCmd creates the 'blacklist' command group.
func newBlacklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Inspect or edit the URL blacklist",
		Long: `The blacklist holds URL substrings; any candidate whose URL contains one of
them (case-insensitive) is never downloaded.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the blacklist entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return editBlacklist(cmd, nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add ENTRY...",
		Short: "Add entries to the blacklist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editBlacklist(cmd, func(b *blacklist.Blacklist) int {
				changed := 0
				for _, entry := range args {
					if b.Add(entry) {
						changed++
					}
				}
				return changed
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove ENTRY...",
		Short: "Remove entries from the blacklist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editBlacklist(cmd, func(b *blacklist.Blacklist) int {
				changed := 0
				for _, entry := range args {
					if b.Remove(entry) {
						changed++
					}
				}
				return changed
			})
		},
	})
	return cmd
}

// editBlacklist loads the blacklist, applies edit, saves it when edit changed
// anything, and prints the resulting entries.
func editBlacklist(cmd *cobra.Command, edit func(*blacklist.Blacklist) int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	path := appInstance.BlacklistPath()
	b, err := blacklist.Load(ctx, appInstance.Store(), path)
	if err != nil {
		return err
	}
	if edit != nil {
		if changed := edit(b); changed > 0 {
			if err := blacklist.Save(ctx, appInstance.Store(), path, b); err != nil {
				return err
			}
			appInstance.Logger().Info("blacklist saved", zap.String("path", path), zap.Int("changed", changed))
		}
	}
	out := cmd.OutOrStdout()
	for _, entry := range b.Entries() {
		if _, err := fmt.Fprintln(out, entry); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
