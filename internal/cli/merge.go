package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/flow"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Output string
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <base-file> <override-file>",
		Short: "Layer one flow on top of another",
		Long: `Merge two flows and print the result as JSON.

Override steps replace base steps with the same id and are otherwise
appended. Global rules are concatenated; success criteria and metadata merge
key-wise with the override winning.

Example:
  convtest merge flows/base.yaml flows/staging.yaml -o merged.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the merged flow to a file")

	return cmd
}

func runMerge(opts *MergeOptions, basePath, overridePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	parser := flow.NewParser(newQuietLogger(formatter))

	base, err := LoadFlow(basePath, parser)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), map[string]string{"file": basePath})
		return WrapExitError(ExitCommandError, "failed to load base flow", err)
	}
	override, err := LoadFlow(overridePath, parser)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), map[string]string{"file": overridePath})
		return WrapExitError(ExitCommandError, "failed to load override flow", err)
	}

	merged := flow.MergeFlows(base, override)
	formatter.VerboseLog("Merged %d + %d step(s) into %d", len(base.Steps), len(override.Steps), len(merged.Steps))
	return writeDocument(formatter, opts.Output, merged)
}

// writeDocument writes v as indented JSON to path, or to the formatter when
// path is empty. JSON format wraps stdout output in a CLIResponse.
func writeDocument(formatter *OutputFormatter, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode document", err)
	}

	if path != "" {
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		if formatter.isJSON() {
			return formatter.Respond(CLIResponse{Data: map[string]string{"output": path}})
		}
		fmt.Fprintf(formatter.Writer, "✓ Wrote %s\n", path)
		return nil
	}

	if formatter.isJSON() {
		return formatter.Respond(CLIResponse{Data: json.RawMessage(data)})
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}
