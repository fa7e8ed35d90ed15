/*
Package measure provides the core of the measurement capture engine.

PURPOSE:
  An operator appends measurement records to a spreadsheet whose column
  layout is only known at runtime. This package holds the domain types and
  the pure algorithms: header cleaning, decimal normalization, validation,
  column classification and staleness reconciliation. File access lives in
  the workbook and store packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - HeaderSet: ordered, de-duplicated header names with 1-based columns
  - ColumnMap: header name -> 1-based column, grown by schema evolution
  - Value: closed tagged variant for cell contents
  - Classification: partition of headers into persistent vs measurement
  - WriteResult: outcome of one append

LIFECYCLE:
  HeaderSet and ColumnMap are rebuilt on every read. Classification is the
  only durable state besides the workbook itself. Records and validation
  results live for one submit cycle.

SEE ALSO:
  - decimal.go: Decimal Normalizer
  - validation.go: Validation Engine
  - classification.go: store interface and staleness reconciliation
  - service.go: orchestration used by the API and CLI
*/
package measure

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// HEADER SET - Ordered unique header names with their columns
// =============================================================================

// HeaderSet is the cleaned header row of one sheet.
//
// INVARIANTS:
//   - Names are unique and non-empty.
//   - Index has exactly one entry per name.
//   - Names are in left-to-right column order.
type HeaderSet struct {
	Names []string
	Index map[string]int
}

// NewHeaderSet returns an empty HeaderSet ready for Add.
func NewHeaderSet() HeaderSet {
	return HeaderSet{Index: make(map[string]int)}
}

// Add appends a name at the given column. The first assignment wins.
func (h *HeaderSet) Add(name string, column int) {
	if h.Index == nil {
		h.Index = make(map[string]int)
	}
	if _, exists := h.Index[name]; exists {
		return
	}
	h.Names = append(h.Names, name)
	h.Index[name] = column
}

// Column returns the 1-based column of a header.
func (h HeaderSet) Column(name string) (int, bool) {
	col, ok := h.Index[name]
	return col, ok
}

func (h HeaderSet) Len() int { return len(h.Names) }

// ColumnMap returns a mutable copy of the name -> column index.
func (h HeaderSet) ColumnMap() ColumnMap {
	m := make(ColumnMap, len(h.Index))
	for k, v := range h.Index {
		m[k] = v
	}
	return m
}

// =============================================================================
// COLUMN MAP - Header name -> 1-based column
// =============================================================================

// ColumnMap maps header names to 1-based column indices. Schema evolution
// only ever adds entries; existing assignments are never changed.
type ColumnMap map[string]int

func (m ColumnMap) Clone() ColumnMap {
	out := make(ColumnMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MaxIndex returns the highest assigned column, or 0 for an empty map.
func (m ColumnMap) MaxIndex() int {
	max := 0
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	return max
}

// =============================================================================
// VALUE - Cell contents as a closed tagged variant
// =============================================================================

type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
	KindTemporal
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindTemporal:
		return "temporal"
	default:
		return "empty"
	}
}

// Value is a single cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Time   time.Time
}

func Empty() Value               { return Value{Kind: KindEmpty} }
func Text(s string) Value        { return Value{Kind: KindText, Text: s} }
func Number(f float64) Value     { return Value{Kind: KindNumber, Number: f} }
func Temporal(t time.Time) Value { return Value{Kind: KindTemporal, Time: t} }
func (v Value) IsEmpty() bool    { return v.Kind == KindEmpty }

// String stringifies the value the way header cells are coerced.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindTemporal:
		return v.Time.Format(time.RFC3339)
	default:
		return ""
	}
}

// Interface returns the Go value suitable for JSON or cell writes.
func (v Value) Interface() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return v.Number
	case KindTemporal:
		return v.Time
	default:
		return nil
	}
}

// Row is one data row read back from a sheet.
type Row struct {
	Number int
	Values map[string]Value
}

// =============================================================================
// CLASSIFICATION - Persistent vs measurement partition
// =============================================================================

// Fingerprint addresses persisted classification data. It is derived from
// the resolved absolute path of the workbook, not its content.
type Fingerprint string

// Classification partitions the headers of one sheet.
type Classification struct {
	Persistent  []string `json:"persistent"`
	Measurement []string `json:"measurement"`
}

// Headers returns the union of both partitions as a set.
func (c Classification) Headers() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Persistent)+len(c.Measurement))
	for _, h := range c.Persistent {
		set[h] = struct{}{}
	}
	for _, h := range c.Measurement {
		set[h] = struct{}{}
	}
	return set
}

// =============================================================================
// VALIDATION AND WRITE RESULTS
// =============================================================================

// FieldIssue is the structured form of one warning or error.
type FieldIssue struct {
	Header string
	Raw    string
	Err    error // ErrEmpty (warning) or ErrNotNumeric (error)
}

// ValidationResult is the outcome of validating one record.
type ValidationResult struct {
	Normalized map[string]*float64
	Warnings   []string
	Errors     []string
	Issues     []FieldIssue
}

// HasErrors reports whether submission must be blocked. Warnings never block.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// WriteResult is returned once per append call.
type WriteResult struct {
	Success        bool
	RowNumber      int
	Err            error
	ColumnsCreated []string
	ColumnMap      ColumnMap // evolved map for the caller's next record
}

func (r WriteResult) String() string {
	if !r.Success {
		return fmt.Sprintf("write failed: %v", r.Err)
	}
	return fmt.Sprintf("row %d written (%d columns created)", r.RowNumber, len(r.ColumnsCreated))
}
