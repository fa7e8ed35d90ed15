/*
Package sqlite provides a SQLite-backed ClassificationStore.

PURPOSE:
  Alternative to the JSON sidecar for installations that keep many
  workbooks and want one file holding every classification. Same contract
  as the sidecar: Save replaces one sheet's entry, Load never fails.

KEY TABLES:
  classifications: one row per (fingerprint, sheet), partition stored as JSON
  submissions:     log of append attempts (operation id, row, outcome)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/classifications.db", log)
  if err != nil {
      return err
  }
  defer st.Close()

  svc := measure.NewService(reader, writer, st, settings, log)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - measure/classification.go: ClassificationStore contract
  - store/sidecar: default JSON implementation
  - measure/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/warp/measure-engine/measure"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements measure.ClassificationStore and measure.SubmissionLog.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log zerolog.Logger
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, log: log.With().Str("component", "sqlite").Logger()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classifications (
		fingerprint TEXT NOT NULL,
		sheet TEXT NOT NULL,
		file TEXT NOT NULL,
		persistent_json TEXT NOT NULL,
		measurement_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (fingerprint, sheet)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		operation_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		sheet TEXT NOT NULL,
		operator_id TEXT,
		row_num INTEGER,
		success INTEGER NOT NULL,
		error_kind TEXT,
		error_message TEXT,
		columns_created_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_file
		ON submissions(fingerprint, sheet, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLASSIFICATIONS
// =============================================================================

// Save upserts the classification for one sheet. Rows for other sheets of
// the same workbook are untouched.
func (s *Store) Save(ctx context.Context, fp measure.Fingerprint, displayName, sheet string, c measure.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persistentJSON, err := json.Marshal(nonNil(c.Persistent))
	if err != nil {
		return fmt.Errorf("failed to marshal persistent: %w", err)
	}
	measurementJSON, err := json.Marshal(nonNil(c.Measurement))
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}

	query := `
		INSERT INTO classifications (fingerprint, sheet, file, persistent_json, measurement_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, sheet) DO UPDATE SET
			file = excluded.file,
			persistent_json = excluded.persistent_json,
			measurement_json = excluded.measurement_json,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		string(fp),
		sheet,
		displayName,
		string(persistentJSON),
		string(measurementJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	return nil
}

// Load returns the stored classification. Query failures and unreadable
// rows are logged and reported as absent.
func (s *Store) Load(ctx context.Context, fp measure.Fingerprint, sheet string) (measure.Classification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var persistentJSON, measurementJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT persistent_json, measurement_json FROM classifications WHERE fingerprint = ? AND sheet = ?`,
		string(fp), sheet,
	).Scan(&persistentJSON, &measurementJSON)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Debug().Err(err).Str("sheet", sheet).Msg("classification lookup failed, treating as absent")
		}
		return measure.Classification{}, false
	}

	var c measure.Classification
	if err := json.Unmarshal([]byte(persistentJSON), &c.Persistent); err != nil {
		s.log.Debug().Err(err).Str("sheet", sheet).Msg("classification corrupt, treating as absent")
		return measure.Classification{}, false
	}
	if err := json.Unmarshal([]byte(measurementJSON), &c.Measurement); err != nil {
		s.log.Debug().Err(err).Str("sheet", sheet).Msg("classification corrupt, treating as absent")
		return measure.Classification{}, false
	}
	c.Persistent = nonNil(c.Persistent)
	c.Measurement = nonNil(c.Measurement)
	return c, true
}

// SavedSheets lists the sheets with a stored classification for a workbook.
func (s *Store) SavedSheets(ctx context.Context, fp measure.Fingerprint) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT sheet FROM classifications WHERE fingerprint = ? ORDER BY sheet`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("failed to query sheets: %w", err)
	}
	defer rows.Close()

	var sheets []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		sheets = append(sheets, name)
	}
	return sheets, rows.Err()
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// Record logs one append attempt.
func (s *Store) Record(ctx context.Context, sub measure.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdJSON, err := json.Marshal(nonNil(sub.ColumnsCreated))
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}

	query := `
		INSERT INTO submissions
		(operation_id, fingerprint, sheet, operator_id, row_num, success,
		 error_kind, error_message, columns_created_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		sub.OperationID,
		string(sub.Fingerprint),
		sub.Sheet,
		nullString(sub.OperatorID),
		nullInt(sub.RowNumber),
		boolToInt(sub.Success),
		nullString(sub.ErrorKind),
		nullString(sub.ErrorMessage),
		string(createdJSON),
		sub.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// Submissions returns the most recent append attempts for a sheet, newest
// first. limit <= 0 returns all of them.
func (s *Store) Submissions(ctx context.Context, fp measure.Fingerprint, sheet string, limit int) ([]measure.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT operation_id, fingerprint, sheet, operator_id, row_num, success,
		       error_kind, error_message, columns_created_json, created_at
		FROM submissions
		WHERE fingerprint = ? AND sheet = ?
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{string(fp), sheet}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var out []measure.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubmission(rows *sql.Rows) (measure.Submission, error) {
	var (
		sub                       measure.Submission
		fp                        string
		operatorID, kind, message sql.NullString
		rowNumber                 sql.NullInt64
		success                   int
		createdJSON, createdAt    string
	)
	if err := rows.Scan(&sub.OperationID, &fp, &sub.Sheet, &operatorID, &rowNumber, &success,
		&kind, &message, &createdJSON, &createdAt); err != nil {
		return sub, fmt.Errorf("failed to scan submission: %w", err)
	}

	sub.Fingerprint = measure.Fingerprint(fp)
	sub.OperatorID = operatorID.String
	sub.RowNumber = int(rowNumber.Int64)
	sub.Success = success == 1
	sub.ErrorKind = kind.String
	sub.ErrorMessage = message.String
	if createdJSON != "" {
		if err := json.Unmarshal([]byte(createdJSON), &sub.ColumnsCreated); err != nil {
			return sub, fmt.Errorf("failed to unmarshal columns: %w", err)
		}
	}
	at, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return sub, fmt.Errorf("failed to parse created_at: %w", err)
	}
	sub.At = at
	return sub, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
