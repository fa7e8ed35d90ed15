/*
handlers.go - HTTP API handlers for the measurement engine

PURPOSE:
  Exposes the measure.Service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the service.

ENDPOINTS:
  Sheets:
    GET    /api/settings                  Header row, auto columns, defaults
    GET    /api/sheets?path=&sheet=       Headers + reconciled classification
    GET    /api/rows?path=&sheet=         Typed dump of the data rows

  Classification:
    PUT    /api/classification            Save a sheet's partition

  Records:
    POST   /api/validate                  Validate fields without writing
    POST   /api/records                   Validate and append one record
    GET    /api/history?path=&sheet=&limit=  Recent append attempts

ARCHITECTURE:
  Handler holds the service, a row reader and a mutex. Every call that
  touches a workbook or a classification takes the mutex: the engine
  assumes one operation at a time per process.

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the error kind:
  - 400: Malformed request body or missing parameter
  - 404: File or sheet not found
  - 422: Header problems, invalid numbers, partition mismatch
  - 423: Workbook locked by another program (retry later)
  - 500: Anything else
  - 501: History asked of a store that keeps none

SECURITY NOTE:
  No authentication or authorization. Paths are read as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RowReader dumps the data rows of a sheet.
type RowReader interface {
	ReadRows(path, sheet string, headerRow int) ([]measure.Row, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *measure.Service
	Rows    RowReader

	mu       sync.Mutex
	log      zerolog.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler for the given service.
func NewHandler(svc *measure.Service, rows RowReader, log zerolog.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Rows:     rows,
		log:      log.With().Str("component", "api").Logger(),
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		if tag == "" || tag == "-" {
			return fld.Name
		}
		return tag
	})
	return v
}

// =============================================================================
// SHEET HANDLERS
// =============================================================================

// GetSettings returns the deployment settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s := h.Service.Settings()
	writeJSON(w, http.StatusOK, SettingsDTO{
		HeaderRow:         s.HeaderRow,
		AutoColumns:       measure.AutoColumnNames(s.AutoColumns),
		DefaultPersistent: nonNil(s.DefaultPersistent),
	})
}

// GetSheet reads the header row and the reconciled classification.
func (h *Handler) GetSheet(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}

	h.mu.Lock()
	view, err := h.Service.OpenSheet(r.Context(), path, r.URL.Query().Get("sheet"))
	h.mu.Unlock()
	if err != nil {
		writeDomainError(w, "Failed to read sheet", err)
		return
	}

	writeJSON(w, http.StatusOK, NewSheetDTO(view))
}

// GetRows dumps the data rows of a sheet.
func (h *Handler) GetRows(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	sheet := r.URL.Query().Get("sheet")

	h.mu.Lock()
	head, err := h.Service.OpenSheet(r.Context(), path, sheet)
	var rows []measure.Row
	if err == nil {
		rows, err = h.Rows.ReadRows(path, head.Sheet, h.Service.Settings().HeaderRow)
	}
	h.mu.Unlock()
	if err != nil {
		writeDomainError(w, "Failed to read rows", err)
		return
	}

	dtos := make([]RowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = NewRowDTO(row)
	}
	writeJSON(w, http.StatusOK, RowsResponse{Path: path, Sheet: head.Sheet, Rows: dtos})
}

// =============================================================================
// CLASSIFICATION HANDLERS
// =============================================================================

// SaveClassification stores a sheet's partition after checking it against
// the current headers.
func (h *Handler) SaveClassification(w http.ResponseWriter, r *http.Request) {
	var req SaveClassificationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c := measure.Classification{Persistent: req.Persistent, Measurement: req.Measurement}

	h.mu.Lock()
	err := h.Service.SaveClassification(r.Context(), req.Path, req.Sheet, c)
	var view measure.SheetView
	if err == nil {
		view, err = h.Service.OpenSheet(r.Context(), req.Path, req.Sheet)
	}
	h.mu.Unlock()
	if err != nil {
		writeDomainError(w, "Failed to save classification", err)
		return
	}

	writeJSON(w, http.StatusOK, NewSheetDTO(view))
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// ValidateRecord runs the validation engine only.
func (h *Handler) ValidateRecord(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, NewValidationDTO(measure.Validate(req.Fields)))
}

// SubmitRecord validates and appends one record.
//
// 201 with the write result on success; 422 with the validation result when
// a field did not parse; the write's error status otherwise. The body always
// carries the evolved column map for the next record.
func (h *Handler) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	var req SubmitRecordRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	sreq := measure.SubmitRequest{
		Path:         req.Path,
		Sheet:        req.Sheet,
		OperatorID:   req.OperatorID,
		Persistent:   req.Persistent,
		Measurements: req.Measurements,
	}
	if req.Columns != nil {
		sreq.Columns = measure.ColumnMap(req.Columns)
	}
	if req.Timestamp != nil {
		sreq.Timestamp = *req.Timestamp
	}

	h.mu.Lock()
	result, err := h.Service.Submit(r.Context(), sreq)
	h.mu.Unlock()
	if err != nil {
		writeDomainError(w, "Failed to submit record", err)
		return
	}

	resp := NewSubmitResponse(result)

	switch {
	case result.Validation.HasErrors():
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case result.Write != nil && !result.Write.Success:
		writeJSON(w, statusFor(result.Write.Err), resp)
	default:
		writeJSON(w, http.StatusCreated, resp)
	}
}

// GetHistory lists recent append attempts for a sheet.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	sheet, ok := requireQuery(w, r, "sheet")
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	history, err := h.Service.History(r.Context(), path, sheet, limit)
	if errors.Is(err, measure.ErrNoHistory) {
		writeError(w, http.StatusNotImplemented, "History needs the sqlite store", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	dtos := make([]SubmissionDTO, len(history))
	for i, s := range history {
		dtos[i] = NewSubmissionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeJSON decodes and validates a request body, writing a 400 on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
			}
			err = errors.New(strings.Join(msgs, "; "))
		}
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Missing query parameter %q", name), nil)
		return "", false
	}
	return v, true
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case measure.IsNotFound(err):
		return http.StatusNotFound
	case measure.IsLocked(err):
		return http.StatusLocked
	case measure.IsClientError(err),
		errors.Is(err, measure.ErrNoHeaderRow),
		errors.Is(err, measure.ErrMissingHeader):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:   message,
		Kind:    measure.KindOf(err),
		Details: err.Error(),
	})
}
