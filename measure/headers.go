package measure

import (
	"fmt"
	"strings"
)

// CleanHeaders turns the raw cells of a header row into a HeaderSet.
//
// Cells are stringified by the caller. For the cell at 1-based position N:
//   - blank: a MissingHeaderError{N} is recorded and the column is skipped
//   - otherwise the trimmed text is the name; repeats of a name get _2, _3...
//     while the first occurrence keeps the bare name
//
// Every name keeps the index of its own column, so gaps left by blank cells
// are preserved in the map.
func CleanHeaders(raw []string) (HeaderSet, []error) {
	headers := NewHeaderSet()
	var errs []error
	seen := make(map[string]int)

	for i, cell := range raw {
		col := i + 1
		name := strings.TrimSpace(cell)
		if name == "" {
			errs = append(errs, &MissingHeaderError{Column: col})
			continue
		}

		if _, taken := headers.Index[name]; taken {
			name = nextSuffix(name, seen, headers)
		} else {
			seen[name] = 1
		}
		headers.Add(name, col)
	}

	return headers, errs
}

// nextSuffix returns the first free base_n with n >= 2, skipping names
// already taken by a literal header (e.g. a row of "A", "A_2", "A").
func nextSuffix(base string, seen map[string]int, headers HeaderSet) string {
	n := seen[base]
	if n < 1 {
		n = 1
	}
	for {
		n++
		candidate := fmt.Sprintf("%s_%d", base, n)
		if _, taken := headers.Index[candidate]; !taken {
			seen[base] = n
			return candidate
		}
	}
}
