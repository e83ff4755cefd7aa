package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/pdf"
)

type pagesOptions struct {
	src   string
	dst   string
	pages string
}

// newPagesCmd creates the 'pages' subcommand.
func newPagesCmd() *cobra.Command {
	opts := &pagesOptions{}
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Keep only the selected pages of a stored PDF",
		Long: `Loads a PDF from the store, keeps the selected 1-based pages and writes
the result back. Without --dst the output goes next to the source with a
"_selected" suffix.`,
		Example: `  cbcr-finder pages --src CbCRs/acme/report.pdf --pages 3-4,7`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPages(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.src, "src", "", "object path of the source PDF")
	cmd.Flags().StringVar(&opts.dst, "dst", "", "object path of the result")
	cmd.Flags().StringVar(&opts.pages, "pages", "", "page selection, e.g. 1,3-4")
	_ = cmd.MarkFlagRequired("src")
	_ = cmd.MarkFlagRequired("pages")
	return cmd
}

func runPages(cmd *cobra.Command, opts *pagesOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	selection, err := pdf.ParsePages(opts.pages)
	if err != nil {
		return err
	}
	dst := opts.dst
	if dst == "" {
		dst = selectedPath(opts.src)
	}

	ctx := cmd.Context()
	store := appInstance.Store()
	data, err := store.Get(ctx, opts.src)
	if err != nil {
		return fmt.Errorf("load %s: %w", opts.src, err)
	}
	out, err := pdf.SelectPages(data, selection)
	if err != nil {
		return fmt.Errorf("select pages of %s: %w", opts.src, err)
	}
	if err := store.Put(ctx, dst, out); err != nil {
		return fmt.Errorf("store %s: %w", dst, err)
	}
	appInstance.Logger().Info("pages selected",
		zap.String("src", opts.src),
		zap.String("dst", dst),
		zap.Strings("pages", selection),
	)
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), dst); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// selectedPath turns dir/report.pdf into dir/report_selected.pdf.
func selectedPath(src string) string {
	ext := path.Ext(src)
	return strings.TrimSuffix(src, ext) + "_selected" + ext
}
