package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds schema validation results.
type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Tables []TableReport `json:"tables,omitempty"`
	Errors []ErrorReport `json:"errors,omitempty"`
}

// TableReport is one validated table in a ValidationResult.
type TableReport struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// ErrorReport is one schema error in a ValidationResult.
type ErrorReport struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schemas.cue>",
		Short: "Validate table schema declarations",
		Long: `Validate CUE table schema declarations and report the parsed shapes.

Each entry under "tables" must be a record literal such as
"{name: string, amount: int}".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := LoadSchemas(path)

	// A nil result means the input never loaded: bad path, no files.
	if result == nil {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, path)

	if len(loadErrors) > 0 {
		return outputSchemaErrors(formatter, loadErrors)
	}
	return outputSchemas(formatter, result)
}

func outputSchemas(formatter *OutputFormatter, result *LoadResult) error {
	reports := make([]TableReport, len(result.Tables))
	for i, t := range result.Tables {
		reports[i] = TableReport{Name: t.Name, Schema: t.Schema.String()}
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Tables: reports})
	}

	for _, r := range reports {
		fmt.Fprintf(formatter.Writer, "%s: %s\n", r.Name, r.Schema)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d table(s) valid\n", len(reports))
	return nil
}

func outputSchemaErrors(formatter *OutputFormatter, errs []error) error {
	reports := make([]ErrorReport, len(errs))
	for i, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			reports[i] = ErrorReport{Code: loadErr.Code, Message: loadErr.Message}
		} else {
			reports[i] = ErrorReport{Code: ErrCodeGeneric, Message: err.Error()}
		}
	}

	if formatter.Format == "json" {
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: reports},
			Error:  &CLIError{Code: reports[0].Code, Message: reports[0].Message},
		})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(reports)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, r := range reports {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", r.Code, r.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(reports)))
}
