package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/parallel/internal/config"
	"github.com/roach88/parallel/internal/harness"
)

// ValidationError is one problem found in a file.
type ValidationError struct {
	File    string `json:"file"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate configuration and scenario files",
		Long: `Validate CUE configuration files against the #Config schema and YAML
scenario files against the scenario format, without running anything.

Files ending in .cue are checked as configuration; .yaml and .yml files
are checked as scenarios.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var validationErrors []ValidationError
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		if verr := validateFile(path); verr != nil {
			validationErrors = append(validationErrors, *verr)
		}
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, len(paths), validationErrors)
	}

	return outputValidateSuccess(formatter, len(paths))
}

// validateFile checks one file by extension. Returns nil if it is valid.
func validateFile(path string) *ValidationError {
	switch filepath.Ext(path) {
	case ".cue":
		_, err := config.Load(path)
		if err == nil {
			return nil
		}
		verr := &ValidationError{File: path, Code: ErrCodeConfig, Message: err.Error()}
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			verr.Field = cfgErr.Field
			verr.Message = cfgErr.Message
			if cfgErr.Pos.IsValid() {
				verr.Line = cfgErr.Pos.Line()
			}
		}
		return verr

	case ".yaml", ".yml":
		if _, err := harness.LoadScenario(path); err != nil {
			return &ValidationError{File: path, Code: ErrCodeScenario, Message: err.Error()}
		}
		return nil

	default:
		return &ValidationError{
			File:    path,
			Code:    ErrCodeFileType,
			Message: "expected a .cue config or a .yaml scenario",
		}
	}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintf(formatter.Writer, "%s %d file(s) valid\n", mark(true), files)
	return nil
}

// outputValidationErrors outputs multiple validation errors. The envelope
// carries the code of the first error.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []ValidationError) error {
	message := fmt.Sprintf("validation failed with %d error(s)", len(errs))
	if formatter.JSON() {
		return formatter.Fail(errs[0].Code, message, ValidationResult{Valid: false, Files: files, Errors: errs})
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n", mark(false))
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		} else {
			fmt.Fprintln(formatter.Writer, err.File)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, message)
}
