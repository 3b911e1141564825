package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/docsync/internal/schema"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains a compiled schema directory.
type LoadResult struct {
	Schema    *schema.Schema
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema loads and compiles the CUE schema package in dir. The result
// is nil when the directory cannot be built at all; otherwise errors are
// compile and validation failures, and Schema is nil if any occurred.
func LoadSchema(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	value, err := schema.BuildDir(dir)
	if err != nil {
		le := convertCompileError(err, "cue")
		le.Code = ErrCodeBuildFailed
		return nil, []error{le}
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	s, compileErrs := schema.CompileSchema(value)

	var errs []error
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err, "document"))
		if mode == LoadModeFailFast {
			break
		}
	}
	if len(errs) == 0 {
		result.Schema = s
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a schema error to a LoadError with position
// info and an error code.
func convertCompileError(err error, context string) *LoadError {
	var ve schema.ValidationError
	if errors.As(err, &ve) {
		return &LoadError{Code: ve.Code, Field: ve.Field, Message: ve.Message}
	}
	var ce *schema.CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    MapFieldToErrorCode(ce.Field),
			Field:   ce.Field,
			Message: err.Error(),
			Pos:     ce.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Field:   context,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands. Schema validation
// codes (E101-E107) come from the schema package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Config or session setup failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeBadInput    = "E007" // Malformed flag or argument

	// Document definition errors
	ErrCodeCollection = "E120" // collection missing or misplaced
	ErrCodeFieldKind  = "E121" // invalid field type (e.g., float)
	ErrCodeRelation   = "E122" // malformed relation
	ErrCodeNoDocs     = "E123" // no document types declared

	// Document operation errors
	ErrCodeDocumentNotFound = "E201"
	ErrCodeIndexNotFound    = "E202"
	ErrCodeNotPersisted     = "E203"
	ErrCodeInvalidField     = "E204"
	ErrCodeStore            = "E210"
)

// MapFieldToErrorCode maps a schema compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "collection":
		return ErrCodeCollection
	case field == "type" || strings.HasPrefix(field, "fields."):
		return ErrCodeFieldKind
	case field == "document":
		return ErrCodeNoDocs
	case strings.HasPrefix(field, "embeds_"), strings.HasPrefix(field, "has_"), strings.HasPrefix(field, "belongs_to"):
		return ErrCodeRelation
	default:
		return ErrCodeGeneric
	}
}
