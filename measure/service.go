/*
service.go - One submit cycle, end to end

PURPOSE:
  Composes the Schema Reader, the Classification Store and the Row Writer
  into the operations the outer surfaces (HTTP API, CLI) need. The service
  holds no file handles or cached headers between calls; every call is a
  self-contained open -> operate -> close cycle.

OPERATIONS:
  OpenSheet:          read headers, load + reconcile the classification
  SaveClassification: check a proposed partition, then persist it
  Submit:             validate a record and, if it has no errors, append it

FLOW:
  1. OpenSheet -> SheetView (headers, column map, classification, notice)
  2. operator fills persistent values once, measurement values per record
  3. Submit -> ValidationResult; errors block, warnings do not
  4. WriteResult.ColumnMap replaces the caller's cached map

SEE ALSO:
  - workbook/reader.go, workbook/writer.go: HeaderReader and RowAppender
  - classification.go: Reconcile
*/
package measure

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// PORTS - Implemented by the workbook package
// =============================================================================

// HeaderResult is what the Schema Reader returns. Open failures, a missing
// sheet or a missing header row appear in Errors with an empty HeaderSet;
// blank header cells appear as MissingHeaderError next to a usable HeaderSet.
type HeaderResult struct {
	SheetNames []string
	Sheet      string
	Headers    HeaderSet
	Errors     []error
}

// Err joins every error of the read, or returns nil.
func (r HeaderResult) Err() error {
	return errors.Join(r.Errors...)
}

// HeaderReader reads the header row of one sheet.
type HeaderReader interface {
	ReadHeaders(path, sheet string, headerRow int) HeaderResult
}

// AppendRequest carries one record for the Row Writer.
type AppendRequest struct {
	Path         string
	Sheet        string
	HeaderRow    int
	Columns      ColumnMap
	Persistent   map[string]string
	OperatorID   string
	Timestamp    time.Time
	Measurements map[string]*float64
}

// RowAppender appends one row, growing the schema when needed.
type RowAppender interface {
	Append(ctx context.Context, req AppendRequest) WriteResult
}

// =============================================================================
// SERVICE
// =============================================================================

// Settings are the deployment choices the core is parameterized by.
type Settings struct {
	HeaderRow         int
	AutoColumns       []AutoColumn
	DefaultPersistent []string
}

// Service runs submit cycles against workbooks.
type Service struct {
	reader   HeaderReader
	writer   RowAppender
	store    ClassificationStore
	history  SubmissionLog
	clock    Clock
	settings Settings
	log      zerolog.Logger
}

// NewService wires the service. A zero HeaderRow means row 1.
func NewService(reader HeaderReader, writer RowAppender, store ClassificationStore, settings Settings, log zerolog.Logger) *Service {
	if settings.HeaderRow < 1 {
		settings.HeaderRow = 1
	}
	return &Service{
		reader:   reader,
		writer:   writer,
		store:    store,
		clock:    SystemClock{},
		settings: settings,
		log:      log.With().Str("component", "service").Logger(),
	}
}

func (s *Service) Settings() Settings { return s.settings }

// WithSubmissionLog makes Submit record every append attempt in l.
func (s *Service) WithSubmissionLog(l SubmissionLog) *Service {
	s.history = l
	return s
}

// History returns the latest append attempts for a sheet, newest first.
// Without a submission log it returns ErrNoHistory.
func (s *Service) History(ctx context.Context, path, sheet string, limit int) ([]Submission, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.Submissions(ctx, FingerprintFor(path), sheet, limit)
}

// SheetView is everything a caller needs to render the capture form.
type SheetView struct {
	Path        string
	Sheet       string
	SheetNames  []string
	Headers     HeaderSet
	Columns     ColumnMap
	// SavedSheets names every sheet of the workbook with a saved
	// classification, when the store can list them.
	SavedSheets []string
	Reconciliation
}

// OpenSheet reads the header row and reconciles the stored classification.
// Any read error, including a blank header cell, is returned and blocks
// the caller from proceeding; the partial view is still filled in so the
// sheet list can be shown.
func (s *Service) OpenSheet(ctx context.Context, path, sheet string) (SheetView, error) {
	res := s.reader.ReadHeaders(path, sheet, s.settings.HeaderRow)
	view := SheetView{
		Path:       path,
		Sheet:      res.Sheet,
		SheetNames: res.SheetNames,
		Headers:    res.Headers,
		Columns:    res.Headers.ColumnMap(),
	}
	if err := res.Err(); err != nil {
		s.log.Warn().Err(err).Str("path", path).Str("sheet", sheet).Msg("header read failed")
		return view, err
	}

	fp := FingerprintFor(path)
	var stored *Classification
	if c, ok := s.store.Load(ctx, fp, view.Sheet); ok {
		stored = &c
	}
	view.Reconciliation = Reconcile(stored, res.Headers.Names, AutoColumnNames(s.settings.AutoColumns), s.settings.DefaultPersistent)

	if view.Reset {
		s.log.Info().Str("path", path).Str("sheet", view.Sheet).Msg("columns changed, classification reset to defaults")
	}
	view.SavedSheets = s.savedSheets(ctx, fp)
	return view, nil
}

// savedSheets lists the sheets with a saved classification. A listing
// failure only costs the hint, so it is logged and dropped.
func (s *Service) savedSheets(ctx context.Context, fp Fingerprint) []string {
	lister, ok := s.store.(SheetLister)
	if !ok {
		return nil
	}
	names, err := lister.SavedSheets(ctx, fp)
	if err != nil {
		s.log.Warn().Err(err).Str("fingerprint", string(fp)).Msg("saved sheets not listed")
		return nil
	}
	return names
}

// SaveClassification persists a partition after checking it against the
// sheet's current headers.
func (s *Service) SaveClassification(ctx context.Context, path, sheet string, c Classification) error {
	res := s.reader.ReadHeaders(path, sheet, s.settings.HeaderRow)
	if err := res.Err(); err != nil {
		return err
	}

	available := AvailableHeaders(res.Headers.Names, AutoColumnNames(s.settings.AutoColumns))
	if err := ValidatePartition(c, available); err != nil {
		return err
	}

	if err := s.store.Save(ctx, FingerprintFor(path), DisplayName(path), res.Sheet, c); err != nil {
		return err
	}
	s.log.Info().Str("path", path).Str("sheet", res.Sheet).
		Int("persistent", len(c.Persistent)).Int("measurement", len(c.Measurement)).
		Msg("classification saved")
	return nil
}

// SubmitRequest is one record as entered by the operator.
type SubmitRequest struct {
	Path         string
	Sheet        string    // empty means the first sheet
	Columns      ColumnMap // cached map from OpenSheet or the last WriteResult; nil re-reads
	OperatorID   string
	Persistent   map[string]string
	Measurements map[string]string
	Timestamp    time.Time
}

// SubmitResult carries both halves of a submit cycle. Write is nil when
// validation blocked the write or the column map could not be read.
type SubmitResult struct {
	OperationID string
	Validation  ValidationResult
	Write       *WriteResult
}

// Submit validates the measurement fields and appends the record if no
// field failed to parse. Warnings never block.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	result := SubmitResult{
		OperationID: uuid.NewString(),
		Validation:  Validate(req.Measurements),
	}
	log := s.log.With().Str("op", result.OperationID).Str("path", req.Path).Str("sheet", req.Sheet).Logger()

	if result.Validation.HasErrors() {
		log.Debug().Strs("errors", result.Validation.Errors).Msg("validation blocked submit")
		return result, nil
	}

	columns, sheet := req.Columns, req.Sheet
	if columns == nil || sheet == "" {
		// a cached map without a sheet name still needs the default sheet
		// resolved, and only that
		res := s.reader.ReadHeaders(req.Path, req.Sheet, s.settings.HeaderRow)
		if err := res.Err(); err != nil && (columns == nil || res.Sheet == "") {
			return result, err
		}
		sheet = res.Sheet
		if columns == nil {
			columns = res.Headers.ColumnMap()
		}
	}

	write := s.writer.Append(ctx, AppendRequest{
		Path:         req.Path,
		Sheet:        sheet,
		HeaderRow:    s.settings.HeaderRow,
		Columns:      columns,
		Persistent:   req.Persistent,
		OperatorID:   req.OperatorID,
		Timestamp:    req.Timestamp,
		Measurements: result.Validation.Normalized,
	})
	result.Write = &write
	s.record(ctx, log, newSubmission(result.OperationID, FingerprintFor(req.Path), sheet, req.OperatorID, write, s.clock.Now()))

	if !write.Success {
		log.Error().Err(write.Err).Str("kind", KindOf(write.Err)).Msg("append failed")
		return result, nil
	}
	log.Info().Int("row", write.RowNumber).Strs("columns_created", write.ColumnsCreated).Msg("record appended")
	return result, nil
}

func (s *Service) record(ctx context.Context, log zerolog.Logger, sub Submission) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, sub); err != nil {
		log.Warn().Err(err).Msg("submission not recorded")
	}
}
