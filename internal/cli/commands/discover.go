package commands

import (
	"github.com/spf13/cobra"

	"nexus-catalog/internal/cli/ui"
	"nexus-catalog/internal/descriptor"
	"nexus-catalog/internal/discovery"
)

func newDiscoverCommand(opts *options) *cobra.Command {
	var (
		file    string
		samples int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "discover the tables of a source descriptor",
		Long: `Materialize the descriptor, list its storage, map every blob to a table,
resolve name conflicts and infer each table's schema. Problems are reported
as issues; the command exits with status 1 when any issue is an error.`,
		Example: `  $ catalogctl discover -f warehouse.yaml
  $ catalogctl discover -f warehouse.yaml --samples 5 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			desc, err := descriptor.DecodeFile(file)
			if err != nil {
				return err
			}
			result := discovery.DiscoverDescriptor(cmd.Context(), desc, discovery.Options{MaxSampleRecords: samples}, nil)
			if err := emit(cmd.OutOrStdout(), opts.output, result, func() string { return ui.RenderResult(result) }); err != nil {
				return err
			}
			if !result.IsSuccessful() {
				return ErrUnsuccessful
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "source descriptor file")
	cmd.Flags().IntVar(&samples, "samples", 0, "sample records to read per table")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
