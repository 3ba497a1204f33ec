package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nexus-catalog/internal/cli/ui"
	"nexus-catalog/internal/logger"
)

const version = "1.0.0"

// ErrUnsuccessful is returned when a command ran but its result carries
// errors. The caller exits with status 1 without printing it again.
var ErrUnsuccessful = errors.New("result has errors")

type options struct {
	output   string
	logLevel string
}

// NewRootCommand builds the catalogctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:     "catalogctl",
		Short:   "Discover and verify blob source descriptors",
		Version: version,
		Long: `catalogctl reads a source descriptor (YAML or JSON), resolves its storage,
format and table mapping plugins, and reports the tables it finds together
with every issue met along the way.`,
		Example: `  # Discover tables and show two sample rows each
  $ catalogctl discover -f warehouse.yaml --samples 2

  # Check a descriptor without touching storage
  $ catalogctl verify -f warehouse.yaml

  # Same, as JSON
  $ catalogctl verify -f warehouse.yaml --deep -o json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.output {
			case ui.OutputText, ui.OutputJSON, ui.OutputYAML:
			default:
				return fmt.Errorf("unknown output format %q (expected text, json or yaml)", opts.output)
			}
			return logger.Setup(opts.logLevel, "text")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", ui.OutputText, "output format: text, json or yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newDiscoverCommand(opts), newVerifyCommand(opts), newPluginsCommand(opts))
	return root
}

// Execute runs the command tree with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func emit(w io.Writer, output string, v any, text func() string) error {
	if output == ui.OutputText {
		_, err := fmt.Fprintln(w, text())
		return err
	}
	return ui.Encode(w, output, v)
}
