package workbook

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// ROW WRITER - Append-only rows with monotonic schema growth
// =============================================================================

// TimestampFormat is the number format of the timestamp auto column.
const TimestampFormat = "yyyy-mm-dd hh:mm:ss"

// Writer implements measure.RowAppender.
//
// INVARIANTS:
//   - Columns only grow. An existing name -> column assignment is never
//     changed or reused.
//   - Rows only grow. The target row is one past the last row the sheet
//     has a record for, emptied rows included; nothing is overwritten.
//   - The workbook is saved once, at the end. Any failure before that
//     leaves the file on disk byte-identical.
type Writer struct {
	auto  []measure.AutoColumn
	clock measure.Clock
	log   zerolog.Logger
}

// NewWriter returns a Writer that creates the given auto-generated columns
// in order. A nil clock uses the system clock.
func NewWriter(auto []measure.AutoColumn, clock measure.Clock, log zerolog.Logger) *Writer {
	if clock == nil {
		clock = measure.SystemClock{}
	}
	return &Writer{
		auto:  append([]measure.AutoColumn{}, auto...),
		clock: clock,
		log:   log.With().Str("component", "writer").Logger(),
	}
}

// Append writes one record as a new row.
//
// WriteResult.ColumnMap is the caller's map plus any columns created by
// this call; on failure it is an unchanged copy and ColumnsCreated is empty.
func (w *Writer) Append(ctx context.Context, req measure.AppendRequest) (result measure.WriteResult) {
	result.ColumnMap = req.Columns.Clone()

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	headerRow := req.HeaderRow
	if headerRow < 1 {
		headerRow = 1
	}

	// Anything that goes wrong from here on discards the in-memory workbook.
	defer func() {
		if p := recover(); p != nil {
			result = measure.WriteResult{
				ColumnMap: req.Columns.Clone(),
				Err:       &measure.UnexpectedError{Cause: fmt.Errorf("panic: %v", p)},
			}
		}
	}()

	f, err := open(req.Path)
	if err != nil {
		result.Err = err
		return result
	}
	defer f.Close()

	if req.Sheet == "" {
		result.Err = &measure.SheetError{Sheet: req.Sheet}
		return result
	}
	sheet, err := resolveSheet(f, req.Sheet)
	if err != nil {
		result.Err = err
		return result
	}

	target, header, err := scan(f, sheet, headerRow)
	if err != nil {
		result.Err = &measure.UnexpectedError{Cause: err}
		return result
	}

	columns := req.Columns.Clone()
	created, err := w.evolve(f, sheet, headerRow, header, columns)
	if err != nil {
		result.Err = &measure.UnexpectedError{Cause: err}
		return result
	}

	tsStyle, err := timestampStyle(f)
	if err != nil {
		result.Err = &measure.UnexpectedError{Cause: err}
		return result
	}

	ts := measure.TimestampOr(req.Timestamp, w.clock)
	if err := w.writeRow(f, sheet, target, columns, req, ts, tsStyle); err != nil {
		result.Err = &measure.UnexpectedError{Cause: err}
		return result
	}

	if err := save(f, req.Path); err != nil {
		result.Err = err
		return result
	}

	w.log.Info().Str("path", req.Path).Str("sheet", sheet).Int("row", target).
		Strs("columns_created", created).Msg("row appended")

	return measure.WriteResult{
		Success:        true,
		RowNumber:      target,
		ColumnsCreated: created,
		ColumnMap:      columns,
	}
}

// evolve resolves every auto-generated column missing from columns. A
// header cell that already carries the name is adopted, which covers callers
// holding a map from before an earlier append; otherwise the column is
// created after both the current maximum index and the last populated header
// cell, in configured order. columns is updated in place and only truly
// created names are returned.
func (w *Writer) evolve(f *excelize.File, sheet string, headerRow int, header []string, columns measure.ColumnMap) ([]string, error) {
	existing := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if _, ok := existing[name]; !ok && name != "" {
			existing[name] = i + 1
		}
	}

	var created []string
	next := columns.MaxIndex()
	if len(header) > next {
		next = len(header)
	}
	next++

	for _, ac := range w.auto {
		if _, ok := columns[ac.Name]; ok {
			continue
		}
		if col, ok := existing[ac.Name]; ok {
			columns[ac.Name] = col
			continue
		}
		if err := setCell(f, sheet, next, headerRow, ac.Name); err != nil {
			return nil, fmt.Errorf("create column %q: %w", ac.Name, err)
		}
		columns[ac.Name] = next
		created = append(created, ac.Name)
		next++
	}
	return created, nil
}

// writeRow fills the target row. Persistent values and present measurements
// are written only for headers in columns; absent measurements leave the
// cell empty.
func (w *Writer) writeRow(f *excelize.File, sheet string, row int, columns measure.ColumnMap, req measure.AppendRequest, ts time.Time, tsStyle int) error {
	for _, name := range sortedKeys(req.Persistent) {
		col, ok := columns[name]
		if !ok {
			continue
		}
		if err := setCell(f, sheet, col, row, req.Persistent[name]); err != nil {
			return fmt.Errorf("persistent %q: %w", name, err)
		}
	}

	for _, ac := range w.auto {
		col := columns[ac.Name]
		var err error
		switch ac.Source {
		case measure.SourceTimestamp:
			if err = setCell(f, sheet, col, row, ts); err == nil {
				err = styleCell(f, sheet, col, row, tsStyle)
			}
		case measure.SourceOperator:
			err = setCell(f, sheet, col, row, req.OperatorID)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("auto column %q: %w", ac.Name, err)
		}
	}

	for _, name := range sortedKeys(req.Measurements) {
		col, ok := columns[name]
		value := req.Measurements[name]
		if !ok || value == nil {
			continue
		}
		if err := setCell(f, sheet, col, row, *value); err != nil {
			return fmt.Errorf("measurement %q: %w", name, err)
		}
	}
	return nil
}

// scan returns the append target and the cells of the header row. The
// target is one past the last row record of the sheet and never at or above
// the header row. GetRows alone would miss trailing rows whose cells were
// emptied but kept a style, or hold formulas without a cached value.
func scan(f *excelize.File, sheet string, headerRow int) (target int, header []string, err error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, nil, fmt.Errorf("scan rows: %w", err)
	}
	if headerRow <= len(rows) {
		header = rows[headerRow-1]
	}

	last, err := lastRow(f, sheet)
	if err != nil {
		return 0, nil, fmt.Errorf("scan rows: %w", err)
	}
	if last < len(rows) {
		last = len(rows)
	}
	if last < headerRow {
		last = headerRow
	}
	return last + 1, header, nil
}

// lastRow is the highest row number with a row record, empty or not.
func lastRow(f *excelize.File, sheet string) (int, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	// Next steps through gaps one row at a time, so the count is the
	// number of the last row record.
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Error()
}

// timestampStyle returns the date-time style for the timestamp column.
// Identical styles are shared, so repeated appends add nothing.
func timestampStyle(f *excelize.File) (int, error) {
	format := TimestampFormat
	return f.NewStyle(&excelize.Style{CustomNumFmt: &format})
}

func styleCell(f *excelize.File, sheet string, col, row, style int) error {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, axis, axis, style)
}

func setCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, axis, value)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
