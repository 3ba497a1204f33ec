package commands

import (
	"github.com/spf13/cobra"

	"nexus-catalog/internal/cli/ui"
	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/storage"
)

func newPluginsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "list the registered storage, format and mapping kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds := map[string][]string{
				"storage": storage.DefaultRegistry().Kinds(),
				"format":  format.DefaultRegistry().Kinds(),
				"mapping": mapping.DefaultRegistry().Kinds(),
			}
			return emit(cmd.OutOrStdout(), opts.output, kinds, func() string {
				return ui.RenderKinds(kinds, "storage", "format", "mapping")
			})
		},
	}
}
