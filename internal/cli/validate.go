package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []TypeSummary     `json:"types,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// TypeSummary describes one compiled document type.
type TypeSummary struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Embedded   bool   `json:"embedded,omitempty"`
	Extends    string `json:"extends,omitempty"`
	Relations  int    `json:"relations"`
}

// ValidationIssue is one schema problem.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate a document schema",
		Long: `Compile the CUE document schema in a directory and check it.

Reports every compile and cross-type validation error (unknown types,
extends cycles, misplaced collections, embedding mismatches).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result, loadErrors := LoadSchema(dir, LoadModeCollectAll)
	if result == nil {
		var le *LoadError
		if errors.As(loadErrors[0], &le) {
			return formatter.Fail(ExitCommandError, le.Code, le.Message, nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	if len(loadErrors) > 0 {
		issues := make([]ValidationIssue, 0, len(loadErrors))
		for _, err := range loadErrors {
			le := convertCompileError(err, "document")
			issues = append(issues, ValidationIssue{
				Code:    le.Code,
				Field:   le.Field,
				Message: le.Message,
				Line:    lineOf(le.Pos),
			})
		}
		return outputValidationErrors(formatter, issues)
	}

	return outputValidateSuccess(formatter, summarize(result.Schema))
}

func summarize(s *schema.Schema) []TypeSummary {
	names := s.Names()
	out := make([]TypeSummary, 0, len(names))
	for _, name := range names {
		t := s.MustLookup(name)
		out = append(out, TypeSummary{
			Name:       name,
			Collection: s.Collection(t),
			Embedded:   t.Embedded,
			Extends:    t.Extends,
			Relations:  len(s.Relations(t)),
		})
	}
	return out
}

func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

func outputValidateSuccess(formatter *OutputFormatter, types []TypeSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Types: types})
	}

	for _, t := range types {
		formatter.VerboseLog("  %s (%s)", t.Name, t.Collection)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid: %d document type(s)\n", len(types))
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error:  &CLIError{Code: issues[0].Code, Message: issues[0].Message},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
