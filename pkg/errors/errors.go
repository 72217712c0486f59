package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryDetection     ErrorCategory = "detection"
	CategoryMerge         ErrorCategory = "merge"
	CategoryStorage       ErrorCategory = "storage"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Detection errors
	CodeScanTooLarge   ErrorCode = "scan_too_large"
	CodeScanInProgress ErrorCode = "scan_in_progress"
	CodeScanTimeout    ErrorCode = "scan_timeout"
	CodePartialResult  ErrorCode = "partial_result"

	// Merge errors
	CodeGroupTooSmall ErrorCode = "group_too_small"
	CodeDeleteFailed  ErrorCode = "delete_failed"
	CodeAlreadyMerged ErrorCode = "already_merged"

	// Storage errors
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
	CodeQueryFailed        ErrorCode = "query_failed"
	CodeTransactionFailed  ErrorCode = "transaction_failed"

	// Internal errors
	CodeUnexpectedError   ErrorCode = "unexpected_error"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
)

// DedupError is the base error type for all application errors
type DedupError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *DedupError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *DedupError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *DedupError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryDetection, CategoryMerge, CategoryInternal:
		return 5
	case CategoryStorage:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *DedupError) WithContext(key string, value interface{}) *DedupError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *DedupError) WithSuggestion(suggestion string) *DedupError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DedupError
func New(category ErrorCategory, code ErrorCode, message string) *DedupError {
	return &DedupError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with DedupError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *DedupError {
	if err == nil {
		return nil
	}

	return &DedupError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and try using a backup copy"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the file has all required columns with correct headers"
	case CodeInvalidData:
		message = fmt.Sprintf("invalid data in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "correct the data format or remove the invalid entry"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD or YYYY-MM-DD HH:MM:SS"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// DetectionError creates a detection-related error
func DetectionError(code ErrorCode, operation string, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeScanTooLarge:
		message = fmt.Sprintf("transaction set too large during %s", operation)
		suggestion = "narrow the date range or raise the minimum amount threshold"
	case CodeScanInProgress:
		message = fmt.Sprintf("another scan is already running during %s", operation)
		suggestion = "wait for the running scan to finish before starting a new one"
	case CodeScanTimeout:
		message = fmt.Sprintf("scan exceeded its time budget during %s", operation)
		suggestion = "narrow the date range or increase the scan timeout"
	case CodePartialResult:
		message = fmt.Sprintf("scan produced a partial result during %s", operation)
		suggestion = "inspect the result's error list for per-group failures"
	default:
		message = fmt.Sprintf("detection error during %s", operation)
		suggestion = "review the scan parameters and try again"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryDetection, code, message)
	} else {
		result = New(CategoryDetection, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// MergeError creates a merge-related error
func MergeError(code ErrorCode, groupID string, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeGroupTooSmall:
		message = fmt.Sprintf("group %s has fewer than 2 members and cannot be merged", groupID)
		suggestion = "only groups with at least two transactions are mergeable"
	case CodeDeleteFailed:
		message = fmt.Sprintf("failed to delete superseded transactions for group %s", groupID)
		suggestion = "check storage availability and retry the merge"
	case CodeAlreadyMerged:
		message = fmt.Sprintf("group %s has already been merged", groupID)
		suggestion = "refresh the group list before retrying"
	default:
		message = fmt.Sprintf("merge error for group %s", groupID)
		suggestion = "review the group and try again"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryMerge, code, message)
	} else {
		result = New(CategoryMerge, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("group_id", groupID)
}

// StorageError creates a storage-related error
func StorageError(code ErrorCode, operation string, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeStorageUnavailable:
		message = fmt.Sprintf("storage unavailable during %s", operation)
		suggestion = "check the database path and connectivity"
	case CodeQueryFailed:
		message = fmt.Sprintf("query failed during %s", operation)
		suggestion = "check the database schema and query parameters"
	case CodeTransactionFailed:
		message = fmt.Sprintf("database transaction failed during %s", operation)
		suggestion = "retry the operation; the database was left unchanged"
	default:
		message = fmt.Sprintf("storage error during %s", operation)
		suggestion = "check the database and try again"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryStorage, code, message)
	} else {
		result = New(CategoryStorage, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *DedupError {
	var message string
	var suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeResourceExhausted:
		message = fmt.Sprintf("resource exhausted during %s", operation)
		suggestion = "try reducing batch size or increasing system resources"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	var result *DedupError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*DedupError         `json:"errors"`
	SampleErrors []*DedupError         `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errors []*DedupError) *ErrorSummary {
	if len(errors) == 0 {
		return &ErrorSummary{
			Total:      0,
			ByCategory: make(map[ErrorCategory]int),
			ByCode:     make(map[ErrorCode]int),
			Errors:     []*DedupError{},
		}
	}

	summary := &ErrorSummary{
		Total:      len(errors),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errors,
	}

	// Count by category and code
	for _, err := range errors {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	// Include sample errors (max 5)
	maxSamples := 5
	if len(errors) > maxSamples {
		summary.SampleErrors = errors[:maxSamples]
	} else {
		summary.SampleErrors = errors
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	count, exists := es.ByCategory[category]
	return exists && count > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	count, exists := es.ByCode[code]
	return exists && count > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsDedupError checks if an error is a DedupError
func IsDedupError(err error) bool {
	_, ok := err.(*DedupError)
	return ok
}

// AsDedupError extracts a DedupError from an error chain
func AsDedupError(err error) (*DedupError, bool) {
	var dedupErr *DedupError
	if errors.As(err, &dedupErr) {
		return dedupErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a DedupError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *DedupError {
	if err == nil {
		return nil
	}

	if dedupErr, ok := AsDedupError(err); ok {
		return dedupErr
	}

	return Wrap(err, category, code, message)
}
