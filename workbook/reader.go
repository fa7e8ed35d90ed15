package workbook

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// SCHEMA READER
// =============================================================================

// Reader implements measure.HeaderReader.
type Reader struct {
	log zerolog.Logger
}

func NewReader(log zerolog.Logger) *Reader {
	return &Reader{log: log.With().Str("component", "reader").Logger()}
}

// ReadHeaders reads the single row at headerRow (1-based) and cleans it
// into a HeaderSet. Sheet may be empty to select the first sheet.
//
// Errors are returned in the result, never raised:
//   - open failures, SheetNotFound and NoHeaderRow leave Headers empty
//   - blank header cells add MissingHeaderError and are skipped
func (r *Reader) ReadHeaders(path, sheet string, headerRow int) (result measure.HeaderResult) {
	defer openFailedOnPanic(path, func(err error) {
		result = measure.HeaderResult{Errors: []error{err}}
	})

	if headerRow < 1 {
		result.Errors = append(result.Errors, measure.ErrInvalidHeaderRow)
		return result
	}

	f, err := open(path)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	defer f.Close()

	result.SheetNames = f.GetSheetList()
	target, err := resolveSheet(f, sheet)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	result.Sheet = target

	rows, err := f.GetRows(target)
	if err != nil {
		result.Errors = append(result.Errors, &measure.FileError{Kind: measure.ErrOpenFailed, Path: path, Detail: err.Error()})
		return result
	}

	if headerRow > len(rows) || blankRow(rows[headerRow-1]) {
		result.Errors = append(result.Errors, measure.ErrNoHeaderRow)
		return result
	}

	headers, errs := measure.CleanHeaders(rows[headerRow-1])
	result.Headers = headers
	result.Errors = append(result.Errors, errs...)

	r.log.Debug().Str("path", path).Str("sheet", target).Int("headers", headers.Len()).
		Int("header_errors", len(errs)).Msg("headers read")
	return result
}

// openFailedOnPanic reports a panic raised while reading a malformed
// workbook as OpenFailed. It must be deferred directly.
func openFailedOnPanic(path string, report func(error)) {
	if p := recover(); p != nil {
		report(&measure.FileError{Kind: measure.ErrOpenFailed, Path: path, Detail: fmt.Sprintf("panic: %v", p)})
	}
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// ROW DUMP - Typed read-back of data rows
// =============================================================================

// ReadRows returns every non-empty row below the header row, keyed by the
// cleaned header names. Cells are typed: numbers in a date format come back
// as temporal values, other numbers as numbers, everything else as text.
func (r *Reader) ReadRows(path, sheet string, headerRow int) (rows []measure.Row, err error) {
	defer openFailedOnPanic(path, func(perr error) {
		rows, err = nil, perr
	})

	head := r.ReadHeaders(path, sheet, headerRow)
	if err := head.Err(); err != nil {
		return nil, err
	}

	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := f.GetRows(head.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &measure.FileError{Kind: measure.ErrOpenFailed, Path: path, Detail: err.Error()}
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	columns := head.Headers.ColumnMap()
	var out []measure.Row
	for i := headerRow; i < len(raw); i++ {
		if blankRow(raw[i]) {
			continue
		}
		rowNum := i + 1
		row := measure.Row{Number: rowNum, Values: make(map[string]measure.Value, len(columns))}
		for name, col := range columns {
			if col > len(raw[i]) {
				row.Values[name] = measure.Empty()
				continue
			}
			row.Values[name] = typedCell(f, head.Sheet, col, rowNum, raw[i][col-1], date1904)
		}
		out = append(out, row)
	}
	return out, nil
}

// typedCell coerces one raw data cell into a measure.Value.
func typedCell(f *excelize.File, sheet string, col, row int, raw string, date1904 bool) measure.Value {
	if strings.TrimSpace(raw) == "" {
		return measure.Empty()
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return measure.Text(raw)
	}

	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return measure.Text(raw)
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeBool, excelize.CellTypeError, excelize.CellTypeFormula:
		return measure.Text(raw)
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return measure.Temporal(t)
		}
		if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
			return measure.Temporal(t)
		}
		return measure.Text(raw)
	}

	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return measure.Text(raw)
	}
	if isDateCell(f, sheet, axis) {
		if t, err := excelize.ExcelDateToTime(num, date1904); err == nil {
			// serial day fractions carry float noise below a millisecond
			return measure.Temporal(t.Round(time.Millisecond))
		}
	}
	return measure.Number(num)
}

// isDateCell reports whether the cell's number format renders a date or time.
func isDateCell(f *excelize.File, sheet, axis string) bool {
	styleID, err := f.GetCellStyle(sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt)
	}
	return builtinDateFormats[style.NumFmt]
}

// builtinDateFormats are the built-in number format ids that show dates or
// times (ECMA-376 18.8.30, plus the common CJK locale ids).
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// isDateFormat inspects a custom format code, ignoring quoted literals and
// bracketed sections such as colors and locale tags.
func isDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "ydhs")
}
