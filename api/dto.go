/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the measure package from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Sheets:
    SheetDTO, RowsResponse, RowDTO

  Classification:
    SaveClassificationRequest

  Records:
    ValidateRequest, ValidationDTO, SubmitRecordRequest, SubmitResponse,
    WriteResultDTO, SubmissionDTO

VALIDATION:
  Request types carry go-playground/validator tags; decodeJSON checks them
  before a handler sees the request.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ErrorResponse is the body of every non-2xx response without a richer body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// SettingsDTO exposes the deployment settings a capture form needs.
type SettingsDTO struct {
	HeaderRow         int      `json:"header_row"`
	AutoColumns       []string `json:"auto_columns"`
	DefaultPersistent []string `json:"default_persistent"`
}

// SheetDTO is the capture form for one sheet.
type SheetDTO struct {
	Path        string         `json:"path"`
	Sheet       string         `json:"sheet"`
	SheetNames  []string       `json:"sheet_names"`
	Headers     []string       `json:"headers"`
	Columns     map[string]int `json:"columns"`
	Persistent  []string       `json:"persistent"`
	Measurement []string       `json:"measurement"`
	Reset       bool           `json:"reset"`
	Stored      bool           `json:"stored"`
	Unusable    bool           `json:"unusable"`
	SavedSheets []string       `json:"saved_sheets"`
}

// RowDTO is one data row. Temporal values are RFC 3339 strings.
type RowDTO struct {
	Row    int            `json:"row"`
	Values map[string]any `json:"values"`
}

type RowsResponse struct {
	Path  string   `json:"path"`
	Sheet string   `json:"sheet"`
	Rows  []RowDTO `json:"rows"`
}

// SaveClassificationRequest replaces a sheet's partition.
type SaveClassificationRequest struct {
	Path        string   `json:"path" validate:"required"`
	Sheet       string   `json:"sheet"`
	Persistent  []string `json:"persistent" validate:"required"`
	Measurement []string `json:"measurement" validate:"required"`
}

// ValidateRequest checks measurement fields without writing.
type ValidateRequest struct {
	Fields map[string]string `json:"fields" validate:"required"`
}

type ValidationDTO struct {
	Normalized map[string]*float64 `json:"normalized"`
	Warnings   []string            `json:"warnings"`
	Errors     []string            `json:"errors"`
}

// SubmitRecordRequest is one record. Columns is the map from the last
// response; omit it to have the header row re-read.
type SubmitRecordRequest struct {
	Path         string            `json:"path" validate:"required"`
	Sheet        string            `json:"sheet"`
	OperatorID   string            `json:"operator_id" validate:"required"`
	Persistent   map[string]string `json:"persistent"`
	Measurements map[string]string `json:"measurements" validate:"required"`
	Columns      map[string]int    `json:"columns,omitempty"`
	Timestamp    *time.Time        `json:"timestamp,omitempty"`
}

type WriteResultDTO struct {
	Success        bool           `json:"success"`
	RowNumber      int            `json:"row_number,omitempty"`
	ColumnsCreated []string       `json:"columns_created"`
	Columns        map[string]int `json:"columns"`
	Error          string         `json:"error,omitempty"`
	Kind           string         `json:"kind,omitempty"`
}

type SubmitResponse struct {
	OperationID string          `json:"operation_id"`
	Validation  ValidationDTO   `json:"validation"`
	Write       *WriteResultDTO `json:"write,omitempty"`
}

// SubmissionDTO is one entry of the append history.
type SubmissionDTO struct {
	OperationID    string   `json:"operation_id"`
	OperatorID     string   `json:"operator_id,omitempty"`
	RowNumber      int      `json:"row_number,omitempty"`
	Success        bool     `json:"success"`
	Kind           string   `json:"kind,omitempty"`
	Error          string   `json:"error,omitempty"`
	ColumnsCreated []string `json:"columns_created"`
	At             string   `json:"at"`
}

// =============================================================================
// CONVERSIONS - Shared with the CLI's --json output
// =============================================================================

func NewSheetDTO(v measure.SheetView) SheetDTO {
	return SheetDTO{
		Path:        v.Path,
		Sheet:       v.Sheet,
		SheetNames:  nonNil(v.SheetNames),
		Headers:     nonNil(v.Headers.Names),
		Columns:     v.Columns,
		Persistent:  nonNil(v.Classification.Persistent),
		Measurement: nonNil(v.Classification.Measurement),
		Reset:       v.Reset,
		Stored:      v.Stored,
		Unusable:    v.Unusable,
		SavedSheets: nonNil(v.SavedSheets),
	}
}

func NewValidationDTO(r measure.ValidationResult) ValidationDTO {
	return ValidationDTO{
		Normalized: r.Normalized,
		Warnings:   nonNil(r.Warnings),
		Errors:     nonNil(r.Errors),
	}
}

func NewWriteResultDTO(r measure.WriteResult) *WriteResultDTO {
	dto := &WriteResultDTO{
		Success:        r.Success,
		RowNumber:      r.RowNumber,
		ColumnsCreated: nonNil(r.ColumnsCreated),
		Columns:        r.ColumnMap,
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
		dto.Kind = measure.KindOf(r.Err)
	}
	return dto
}

// NewSubmitResponse converts a submit cycle; Write stays nil when no write
// was attempted.
func NewSubmitResponse(r measure.SubmitResult) SubmitResponse {
	resp := SubmitResponse{
		OperationID: r.OperationID,
		Validation:  NewValidationDTO(r.Validation),
	}
	if r.Write != nil {
		resp.Write = NewWriteResultDTO(*r.Write)
	}
	return resp
}

func NewRowDTO(r measure.Row) RowDTO {
	values := make(map[string]any, len(r.Values))
	for name, v := range r.Values {
		if v.Kind == measure.KindTemporal {
			values[name] = v.Time.Format(time.RFC3339)
			continue
		}
		values[name] = v.Interface()
	}
	return RowDTO{Row: r.Number, Values: values}
}

func NewSubmissionDTO(s measure.Submission) SubmissionDTO {
	return SubmissionDTO{
		OperationID:    s.OperationID,
		OperatorID:     s.OperatorID,
		RowNumber:      s.RowNumber,
		Success:        s.Success,
		Kind:           s.ErrorKind,
		Error:          s.ErrorMessage,
		ColumnsCreated: nonNil(s.ColumnsCreated),
		At:             s.At.Format(time.RFC3339),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
