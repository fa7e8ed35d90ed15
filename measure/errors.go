/*
errors.go - Centralized error types for the measurement engine

PURPOSE:
  All error kinds in one place. Every operation returns these as values;
  nothing in the engine is allowed to panic out to its caller.

ERROR CATEGORIES:
  1. Open errors    - FileNotFound, FileLocked, OpenFailed(detail)
  2. Schema errors  - SheetNotFound, NoHeaderRow, MissingHeaderAtColumn(n)
  3. Field errors   - NotNumeric (error), Empty (warning only)
  4. Write errors   - open errors plus Unexpected for anything unclassified

  ConfigCorrupt is absorbed by the classification stores and never surfaced.

USAGE:
  if errors.Is(err, measure.ErrFileLocked) {
      // ask the operator to close the workbook and retry
  }

SEE ALSO:
  - workbook/open.go: classifies OS errors into FileError
*/
package measure

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFileNotFound is returned when the workbook path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileLocked is returned when another process holds the workbook
	// exclusively. The caller may retry once the conflict is resolved.
	ErrFileLocked = errors.New("file is locked by another process")

	// ErrOpenFailed is returned for any other failure to open the workbook.
	ErrOpenFailed = errors.New("file could not be opened")

	ErrSheetNotFound = errors.New("sheet not found")
	ErrNoHeaderRow   = errors.New("no header row found")
	ErrMissingHeader = errors.New("column has no header")

	// ErrInvalidHeaderRow is returned for a header row index below 1.
	ErrInvalidHeaderRow = errors.New("header row must be 1 or greater")

	// ErrNotNumeric is returned when a normalized value cannot be parsed.
	ErrNotNumeric = errors.New("not a valid number")

	// ErrEmpty is returned by Parse for blank input. Validation treats it as
	// a warning, never an error.
	ErrEmpty = errors.New("empty value")

	// ErrUnexpected wraps any mid-write failure not otherwise classified.
	ErrUnexpected = errors.New("unexpected error")

	// ErrPartitionMismatch is returned when a proposed classification does
	// not cover the current headers exactly once.
	ErrPartitionMismatch = errors.New("classification does not match headers")

	// ErrNoHistory is returned by History when no submission log is wired.
	// Only the sqlite store keeps one.
	ErrNoHistory = errors.New("submission history needs the sqlite store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FileError is an open or save failure classified into one of the open
// kinds. Kind is ErrFileNotFound, ErrFileLocked or ErrOpenFailed.
type FileError struct {
	Kind   error
	Path   string
	Detail string
}

func (e *FileError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Path, e.Detail)
}

func (e *FileError) Unwrap() error {
	return e.Kind
}

// SheetError names the sheet that was not found.
type SheetError struct {
	Sheet string
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.Sheet)
}

func (e *SheetError) Unwrap() error {
	return ErrSheetNotFound
}

// MissingHeaderError reports a blank header cell. Column is 1-based.
type MissingHeaderError struct {
	Column int
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("column %d has no header", e.Column)
}

func (e *MissingHeaderError) Unwrap() error {
	return ErrMissingHeader
}

// FieldError is a parse failure for one header.
type FieldError struct {
	Header string
	Raw    string
	Err    error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrEmpty) {
		return fmt.Sprintf("%s is empty", e.Header)
	}
	return fmt.Sprintf("%s: '%s' is not a valid number", e.Header, e.Raw)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// UnexpectedError wraps a failure raised while a write was in progress.
type UnexpectedError struct {
	Cause error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error while writing: %v", e.Cause)
}

func (e *UnexpectedError) Unwrap() []error {
	return []error{ErrUnexpected, e.Cause}
}

// PartitionError lists what is wrong with a proposed classification.
type PartitionError struct {
	Missing    []string // headers in neither partition
	Unknown    []string // names that are not current headers
	Duplicated []string // names in both partitions or repeated
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("classification does not match headers: missing=%v unknown=%v duplicated=%v",
		e.Missing, e.Unknown, e.Duplicated)
}

func (e *PartitionError) Unwrap() error {
	return ErrPartitionMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Error kinds as stable strings for API and CLI output.
const (
	KindFileNotFound   = "file_not_found"
	KindFileLocked     = "file_locked"
	KindOpenFailed     = "open_failed"
	KindSheetNotFound  = "sheet_not_found"
	KindNoHeaderRow    = "no_header_row"
	KindMissingHeader  = "missing_header"
	KindInvalidRow     = "invalid_header_row"
	KindNotNumeric     = "not_numeric"
	KindEmptyValue     = "empty"
	KindPartition      = "partition_mismatch"
	KindUnexpectedFail = "unexpected"
)

// KindOf maps an error onto its taxonomy kind. Unclassified errors are
// reported as unexpected.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFileNotFound):
		return KindFileNotFound
	case errors.Is(err, ErrFileLocked):
		return KindFileLocked
	case errors.Is(err, ErrOpenFailed):
		return KindOpenFailed
	case errors.Is(err, ErrSheetNotFound):
		return KindSheetNotFound
	case errors.Is(err, ErrNoHeaderRow):
		return KindNoHeaderRow
	case errors.Is(err, ErrMissingHeader):
		return KindMissingHeader
	case errors.Is(err, ErrInvalidHeaderRow):
		return KindInvalidRow
	case errors.Is(err, ErrNotNumeric):
		return KindNotNumeric
	case errors.Is(err, ErrEmpty):
		return KindEmptyValue
	case errors.Is(err, ErrPartitionMismatch):
		return KindPartition
	default:
		return KindUnexpectedFail
	}
}

// IsLocked returns true if the error might succeed once the other process
// releases the workbook.
func IsLocked(err error) bool {
	return errors.Is(err, ErrFileLocked)
}

// IsNotFound returns true if the error indicates a missing file or sheet.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrSheetNotFound)
}

// IsClientError returns true if the error is due to invalid operator input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotNumeric) ||
		errors.Is(err, ErrPartitionMismatch) ||
		errors.Is(err, ErrInvalidHeaderRow)
}
