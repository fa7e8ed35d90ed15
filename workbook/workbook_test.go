package workbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST SETUP - Fixture workbooks
// =============================================================================

// sheetRows is the content of one fixture sheet, row by row from A1.
type sheetRows struct {
	name string
	rows [][]any
}

// newWorkbook writes an xlsx with the given sheets into a temp dir.
func newWorkbook(t *testing.T, sheets ...sheetRows) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := append([]any{}, row...)
			require.NoError(t, f.SetSheetRow(s.name, cell, &values))
		}
	}

	path := filepath.Join(t.TempDir(), "Messungen.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func sheet(name string, rows ...[]any) sheetRows {
	return sheetRows{name: name, rows: rows}
}

func row(values ...any) []any { return values }

// cellValue reads one formatted cell back from disk.
func cellValue(t *testing.T, path, sheet, axis string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheet, axis)
	require.NoError(t, err)
	return v
}

// cellNumFmt returns the custom number format applied to a cell.
func cellNumFmt(t *testing.T, path, sheet, axis string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	id, err := f.GetCellStyle(sheet, axis)
	require.NoError(t, err)
	style, err := f.GetStyle(id)
	require.NoError(t, err)
	if style.CustomNumFmt == nil {
		return ""
	}
	return *style.CustomNumFmt
}

func readBytes(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func nopLog() zerolog.Logger { return zerolog.Nop() }
