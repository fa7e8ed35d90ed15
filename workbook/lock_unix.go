//go:build !windows

package workbook

import (
	"errors"
	"io/fs"
	"syscall"
)

// isLockError reports whether err means another process holds the file.
// Unix has no mandatory locks, so a permission refusal or a busy text file
// is the closest signal.
func isLockError(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}
