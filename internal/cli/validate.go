package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/flow"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // advisory issues and lint findings fail validation
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	FlowID string   `json:"flow_id,omitempty"`
	Steps  int      `json:"steps"`
	Issues []string `json:"issues"`
	Lint   []string `json:"lint"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <flow-file>",
		Short: "Check a flow file without running it",
		Long: `Parse a flow file and report anything suspicious.

The flow must parse for validation to pass. Advisory issues (duplicate step
ids, empty user input, no agent) and schema lint findings are printed but
only fail validation with --strict.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat issues and lint findings as failures")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	doc, err := ReadFlowDocument(path)
	if err != nil {
		return outputValidateError(formatter, err)
	}

	parser := flow.NewParser(newQuietLogger(formatter))

	f, err := parser.ParseDocument(doc)
	if err != nil {
		code := ErrCodeMalformed
		if flow.IsStructureError(err) {
			code = ErrCodeStructure
		}
		return outputValidateError(formatter, &LoadError{Code: code, Message: err.Error()})
	}
	formatter.VerboseLog("Parsed flow %s with %d step(s)", f.FlowID, len(f.Steps))

	lint, err := flow.Lint(doc)
	if err != nil {
		formatter.VerboseLog("Schema lint skipped: %v", err)
	}

	result := ValidationResult{
		Valid:  true,
		FlowID: f.FlowID,
		Steps:  len(f.Steps),
		Issues: nonNil(flow.ValidateFlow(f)),
		Lint:   nonNil(lint),
	}
	findings := len(result.Issues) + len(result.Lint)
	if opts.Strict && findings > 0 {
		result.Valid = false
	}

	return outputValidation(formatter, result)
}

// outputValidateError outputs a document that could not be read or parsed.
// Missing files are command errors; unparseable documents fail validation.
func outputValidateError(formatter *OutputFormatter, err error) error {
	code := loadErrorCode(err)
	var le *LoadError
	message := err.Error()
	if errors.As(err, &le) {
		message = le.Message
	}

	if formatter.isJSON() {
		_ = formatter.Respond(CLIResponse{
			Data:  ValidationResult{Issues: []string{}, Lint: []string{}},
			Error: &CLIError{Code: code, Message: message},
		})
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
	}

	if code == ErrCodeNotFound {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
}

// outputValidation outputs the result of a flow that parsed.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	findings := len(result.Issues) + len(result.Lint)

	if formatter.isJSON() {
		resp := CLIResponse{Data: result}
		if !result.Valid {
			resp.Error = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d finding(s)", findings),
			}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if result.Valid {
			fmt.Fprintf(w, "✓ Flow %s is valid (%d steps)\n", result.FlowID, result.Steps)
		} else {
			fmt.Fprintf(w, "✗ Flow %s has %d finding(s)\n", result.FlowID, findings)
		}
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "  ⚠ %s\n", issue)
		}
		for _, l := range result.Lint {
			fmt.Fprintf(w, "  lint: %s\n", l)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d finding(s)", findings))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
