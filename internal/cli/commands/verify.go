package commands

import (
	"github.com/spf13/cobra"

	"nexus-catalog/internal/cli/ui"
	"nexus-catalog/internal/descriptor"
	"nexus-catalog/internal/verify"
)

func newVerifyCommand(opts *options) *cobra.Command {
	var (
		file string
		deep bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check a source descriptor",
		Long: `Check a descriptor for missing or invalid settings without contacting its
storage. With --deep a discovery run follows when the static checks pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			desc, err := descriptor.DecodeFile(file)
			if err != nil {
				return err
			}
			v := verify.Default()
			report := verify.Report{VerificationReport: v.Descriptor(desc)}
			if deep {
				report = v.Source(cmd.Context(), desc, nil)
			}
			if err := emit(cmd.OutOrStdout(), opts.output, report, func() string { return ui.RenderReport(report) }); err != nil {
				return err
			}
			if !report.IsValid() {
				return ErrUnsuccessful
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "source descriptor file")
	cmd.Flags().BoolVar(&deep, "deep", false, "also run discovery against the storage")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
