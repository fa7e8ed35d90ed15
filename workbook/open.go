/*
Package workbook reads and appends to xlsx workbooks.

PURPOSE:
  Implements the Schema Reader (header row -> HeaderSet), a typed row dump,
  and the Row Writer with on-demand schema evolution, all on excelize.
  Every call opens the file, works on an in-memory copy and closes it; no
  handle survives between calls.

OPEN ERRORS:
  Failures to open are classified, never thrown:
  - missing file               -> measure.ErrFileNotFound
  - held by another process    -> measure.ErrFileLocked
  - anything else              -> measure.ErrOpenFailed with the detail

SAVING:
  The Row Writer saves exactly once, at the very end, by writing the whole
  workbook to a temp file in the same directory and renaming it over the
  original. A failure before the rename leaves the original untouched.

SEE ALSO:
  - measure/errors.go: error taxonomy
  - measure/service.go: HeaderReader and RowAppender ports
*/
package workbook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/warp/measure-engine/measure"
)

// open loads the workbook into memory with classified errors.
func open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	return f, nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &measure.FileError{Kind: measure.ErrFileNotFound, Path: path}
	case isLockError(err):
		return &measure.FileError{Kind: measure.ErrFileLocked, Path: path, Detail: "close the workbook in other programs and retry"}
	default:
		return &measure.FileError{Kind: measure.ErrOpenFailed, Path: path, Detail: err.Error()}
	}
}

// resolveSheet returns the sheet to use. An empty name selects the first
// sheet of the workbook.
func resolveSheet(f *excelize.File, sheet string) (string, error) {
	names := f.GetSheetList()
	if sheet == "" {
		if len(names) == 0 {
			return "", &measure.SheetError{Sheet: sheet}
		}
		return names[0], nil
	}
	for _, name := range names {
		if name == sheet {
			return sheet, nil
		}
	}
	return "", &measure.SheetError{Sheet: sheet}
}

// =============================================================================
// ATOMIC SAVE
// =============================================================================

// save writes f over path through a temp file and a rename.
func save(f *excelize.File, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return classifySaveError(path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if info, statErr := os.Stat(path); statErr == nil {
		if chmodErr := tmp.Chmod(info.Mode().Perm()); chmodErr != nil {
			tmp.Close()
			return classifySaveError(path, chmodErr)
		}
	}

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return classifySaveError(path, fmt.Errorf("write workbook: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return classifySaveError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return classifySaveError(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return classifySaveError(path, err)
	}
	return nil
}

func classifySaveError(path string, err error) error {
	if isLockError(err) {
		return &measure.FileError{Kind: measure.ErrFileLocked, Path: path, Detail: "close the workbook in other programs and retry"}
	}
	return &measure.UnexpectedError{Cause: fmt.Errorf("save %s: %w", path, err)}
}
