package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/flow"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <flow-file>",
		Short: "Print a flow in the legacy user_inputs format",
		Long: `Flatten a flow to the legacy format: identity, agent, language and the
list of user inputs. Validation rules and step options are dropped.

Example:
  convtest export flows/booking.yaml -o booking-legacy.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the legacy flow to a file")

	return cmd
}

func runExport(opts *ExportOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	f, err := LoadFlow(path, flow.NewParser(newQuietLogger(formatter)))
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), map[string]string{"file": path})
		return WrapExitError(ExitCommandError, "failed to load flow", err)
	}

	return writeDocument(formatter, opts.Output, flow.ToLegacy(f))
}
