package workbook

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestWriter() *Writer {
	return NewWriter(measure.DefaultAutoColumns(), measure.FixedClock{Time: fixedTime}, nopLog())
}

func f64(v float64) *float64 { return &v }

// headerOnly is a sheet with persistent and measurement columns and no data.
func headerOnly(t *testing.T) string {
	return newWorkbook(t, sheet("Sheet1", row("Charge_#", "Breite", "Höhe")))
}

func baseRequest(path string) measure.AppendRequest {
	return measure.AppendRequest{
		Path:         path,
		Sheet:        "Sheet1",
		HeaderRow:    1,
		Columns:      measure.ColumnMap{"Charge_#": 1, "Breite": 2, "Höhe": 3},
		Persistent:   map[string]string{"Charge_#": "C-1"},
		OperatorID:   "op-7",
		Measurements: map[string]*float64{"Breite": f64(3.4), "Höhe": f64(12)},
	}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestAppend_FirstRecordCreatesAutoColumns(t *testing.T) {
	// GIVEN a sheet with only a header row
	path := headerOnly(t)

	// WHEN appending the first record
	res := newTestWriter().Append(context.Background(), baseRequest(path))

	// THEN the auto columns are created after the last header, in order
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RowNumber)
	assert.Equal(t, []string{"Zeit", "Mitarbeiter"}, res.ColumnsCreated)
	assert.Equal(t, measure.ColumnMap{"Charge_#": 1, "Breite": 2, "Höhe": 3, "Zeit": 4, "Mitarbeiter": 5}, res.ColumnMap)

	assert.Equal(t, "Zeit", cellValue(t, path, "Sheet1", "D1"))
	assert.Equal(t, "Mitarbeiter", cellValue(t, path, "Sheet1", "E1"))
	assert.Equal(t, "C-1", cellValue(t, path, "Sheet1", "A2"))
	assert.Equal(t, "3.4", cellValue(t, path, "Sheet1", "B2"))
	assert.Equal(t, "12", cellValue(t, path, "Sheet1", "C2"))
	assert.Equal(t, "op-7", cellValue(t, path, "Sheet1", "E2"))

	// AND the timestamp shows date and time, not just month and year
	assert.Equal(t, "2024-03-01 09:30:00", cellValue(t, path, "Sheet1", "D2"))
	assert.Equal(t, TimestampFormat, cellNumFmt(t, path, "Sheet1", "D2"))
}

func TestAppend_TimestampStyleShared(t *testing.T) {
	// GIVEN two appends to the same sheet
	ctx := context.Background()
	path := headerOnly(t)
	w := newTestWriter()
	first := w.Append(ctx, baseRequest(path))
	require.True(t, first.Success)
	req := baseRequest(path)
	req.Columns = first.ColumnMap
	second := w.Append(ctx, req)
	require.True(t, second.Success)

	// THEN both timestamp cells carry the same style
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	s2, err := f.GetCellStyle("Sheet1", "D2")
	require.NoError(t, err)
	s3, err := f.GetCellStyle("Sheet1", "D3")
	require.NoError(t, err)
	assert.Equal(t, s2, s3)
}

func TestAppend_SequentialRowsAndColumnsCreatedOnce(t *testing.T) {
	// GIVEN a fresh sheet
	ctx := context.Background()
	path := headerOnly(t)
	w := newTestWriter()

	// WHEN appending several records, feeding back the evolved map
	req := baseRequest(path)
	var rows []int
	for i := 0; i < 4; i++ {
		res := w.Append(ctx, req)
		require.NoError(t, res.Err)
		rows = append(rows, res.RowNumber)
		if i > 0 {
			assert.Empty(t, res.ColumnsCreated, "auto columns only created once")
		}
		req.Columns = res.ColumnMap
	}

	// THEN rows are consecutive from one below the header
	assert.Equal(t, []int{2, 3, 4, 5}, rows)

	// AND reading back gives one row per record with a timestamp
	data, err := NewReader(nopLog()).ReadRows(path, "Sheet1", 1)
	require.NoError(t, err)
	require.Len(t, data, 4)
	for _, r := range data {
		require.Equal(t, measure.KindTemporal, r.Values["Zeit"].Kind)
		assert.WithinDuration(t, fixedTime, r.Values["Zeit"].Time, time.Second)
		assert.Equal(t, measure.Text("op-7"), r.Values["Mitarbeiter"])
	}
}

func TestAppend_StaleMapStillFindsExistingAutoColumns(t *testing.T) {
	// GIVEN a first append that created the auto columns
	ctx := context.Background()
	path := headerOnly(t)
	w := newTestWriter()
	require.True(t, w.Append(ctx, baseRequest(path)).Success)

	// WHEN a caller appends with the map from before that append
	res := w.Append(ctx, baseRequest(path))

	// THEN the existing header cells are adopted, not duplicated
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.RowNumber)
	assert.Empty(t, res.ColumnsCreated)
	assert.Equal(t, 4, res.ColumnMap["Zeit"])
	assert.Equal(t, 5, res.ColumnMap["Mitarbeiter"])
	assert.Equal(t, "", cellValue(t, path, "Sheet1", "F1"))
	assert.Equal(t, "op-7", cellValue(t, path, "Sheet1", "E3"))
}

func TestAppend_UnmappedHeaderCellNotOverwritten(t *testing.T) {
	// GIVEN a header the caller's map does not know about
	path := newWorkbook(t, sheet("Sheet1", row("Charge_#", "Breite", "Höhe", "Neu")))

	// WHEN appending with the three-column map
	res := newTestWriter().Append(context.Background(), baseRequest(path))

	// THEN new columns start after the last populated header cell
	require.NoError(t, res.Err)
	assert.Equal(t, "Neu", cellValue(t, path, "Sheet1", "D1"))
	assert.Equal(t, 5, res.ColumnMap["Zeit"])
	assert.Equal(t, 6, res.ColumnMap["Mitarbeiter"])
}

func TestAppend_AbsentMeasurementLeavesCellEmpty(t *testing.T) {
	path := headerOnly(t)
	req := baseRequest(path)
	req.Measurements = map[string]*float64{"Breite": nil, "Höhe": f64(1.5)}

	res := newTestWriter().Append(context.Background(), req)

	require.NoError(t, res.Err)
	assert.Equal(t, "", cellValue(t, path, "Sheet1", "B2"))
	assert.Equal(t, "1.5", cellValue(t, path, "Sheet1", "C2"))
}

func TestAppend_UnknownHeadersIgnored(t *testing.T) {
	path := headerOnly(t)
	req := baseRequest(path)
	req.Persistent["Unbekannt"] = "x"
	req.Measurements["Fremd"] = f64(9)

	res := newTestWriter().Append(context.Background(), req)

	require.NoError(t, res.Err)
	assert.NotContains(t, res.ColumnMap, "Unbekannt")
	assert.NotContains(t, res.ColumnMap, "Fremd")
}

func TestAppend_AfterExistingData(t *testing.T) {
	// GIVEN a sheet with two data rows already
	path := newWorkbook(t, sheet("Sheet1",
		row("Charge_#", "Breite", "Höhe", "Zeit", "Mitarbeiter"),
		row("C-0", 1, 2, "", "alt"),
		row("C-0", 3, 4, "", "alt"),
	))
	req := baseRequest(path)
	req.Columns = measure.ColumnMap{"Charge_#": 1, "Breite": 2, "Höhe": 3, "Zeit": 4, "Mitarbeiter": 5}

	// WHEN appending
	res := newTestWriter().Append(context.Background(), req)

	// THEN the row goes below the existing data and no column is created
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.RowNumber)
	assert.Empty(t, res.ColumnsCreated)
	assert.Equal(t, "alt", cellValue(t, path, "Sheet1", "E3"))
}

func TestAppend_EmptiedTrailingRowNotReused(t *testing.T) {
	// GIVEN two data rows where the last one was cleared but kept its style
	path := newWorkbook(t, sheet("Sheet1",
		row("Charge_#", "Breite", "Höhe", "Zeit", "Mitarbeiter"),
		row("C-0", 1, 2, "", "alt"),
		row("C-0", 3, 4, "", "alt"),
	))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	style, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFFF00"}}})
	require.NoError(t, err)
	for _, axis := range []string{"A3", "B3", "C3", "E3"} {
		require.NoError(t, f.SetCellValue("Sheet1", axis, nil))
	}
	require.NoError(t, f.SetCellStyle("Sheet1", "A3", "E3", style))
	require.NoError(t, f.Save())
	require.NoError(t, f.Close())

	req := baseRequest(path)
	req.Columns = measure.ColumnMap{"Charge_#": 1, "Breite": 2, "Höhe": 3, "Zeit": 4, "Mitarbeiter": 5}

	// WHEN appending
	res := newTestWriter().Append(context.Background(), req)

	// THEN the vacated row stays empty and the record goes below it
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.RowNumber)
	assert.Equal(t, "", cellValue(t, path, "Sheet1", "A3"))
	assert.Equal(t, "C-1", cellValue(t, path, "Sheet1", "A4"))
}

func TestAppend_HeaderRowBelowTop(t *testing.T) {
	path := newWorkbook(t, sheet("Sheet1",
		row("Prüfprotokoll"),
		row("Charge_#", "Breite", "Höhe"),
	))
	req := baseRequest(path)
	req.HeaderRow = 2

	res := newTestWriter().Append(context.Background(), req)

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.RowNumber)
	assert.Equal(t, "Zeit", cellValue(t, path, "Sheet1", "D2"))
	assert.Equal(t, "", cellValue(t, path, "Sheet1", "D1"))
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestAppend_MissingFile(t *testing.T) {
	req := baseRequest(filepath.Join(t.TempDir(), "nope.xlsx"))

	res := newTestWriter().Append(context.Background(), req)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, measure.ErrFileNotFound)
	assert.Equal(t, req.Columns, res.ColumnMap)
	assert.Empty(t, res.ColumnsCreated)
}

func TestAppend_MissingSheetLeavesFileUntouched(t *testing.T) {
	path := headerOnly(t)
	before := readBytes(t, path)

	for _, name := range []string{"Nope", ""} {
		req := baseRequest(path)
		req.Sheet = name

		res := newTestWriter().Append(context.Background(), req)

		assert.ErrorIs(t, res.Err, measure.ErrSheetNotFound, "sheet %q", name)
	}
	assert.Equal(t, before, readBytes(t, path))
}

func TestAppend_MidWriteFailureLeavesFileByteIdentical(t *testing.T) {
	// GIVEN a map entry that cannot be addressed as a cell
	path := headerOnly(t)
	before := readBytes(t, path)
	req := baseRequest(path)
	req.Columns = measure.ColumnMap{"Charge_#": 0, "Breite": 2, "Höhe": 3}

	// WHEN appending (the header cells for the auto columns are already
	// set in memory when the bad cell is hit)
	res := newTestWriter().Append(context.Background(), req)

	// THEN the failure is unexpected and nothing reached the disk
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, measure.ErrUnexpected)
	assert.Empty(t, res.ColumnsCreated)
	assert.Equal(t, req.Columns, res.ColumnMap)
	assert.Equal(t, before, readBytes(t, path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestAppend_CancelledContext(t *testing.T) {
	path := headerOnly(t)
	before := readBytes(t, path)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestWriter().Append(ctx, baseRequest(path))

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, before, readBytes(t, path))
}

func TestAppend_UnwritableDirIsLocked(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	path := headerOnly(t)
	dir := filepath.Dir(path)
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	res := newTestWriter().Append(context.Background(), baseRequest(path))

	assert.True(t, measure.IsLocked(res.Err), "got %v", res.Err)
}

type panicClock struct{}

func (panicClock) Now() time.Time { panic("clock unavailable") }

func TestAppend_PanicIsUnexpectedAndLeavesFileUntouched(t *testing.T) {
	// GIVEN a writer whose clock panics after the workbook is open
	path := headerOnly(t)
	before := readBytes(t, path)
	w := NewWriter(measure.DefaultAutoColumns(), panicClock{}, nopLog())

	// WHEN appending without an explicit timestamp
	res := w.Append(context.Background(), baseRequest(path))

	// THEN the panic comes back as an unexpected failure
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, measure.ErrUnexpected)
	assert.Equal(t, baseRequest(path).Columns, res.ColumnMap)
	assert.Equal(t, before, readBytes(t, path))
}
