/*
classification.go - Persistent vs measurement column partitions

PURPOSE:
  Each sheet's headers are split into persistent columns (entered once per
  session and repeated on every row) and measurement columns (entered per
  record). The split is durable, keyed by (fingerprint, sheet), and must be
  checked for staleness whenever the header row is re-read.

KEY INTERFACES:
  ClassificationStore: get/put by fingerprint + sheet

STALENESS:
  A stored classification is stale when the SET of its headers differs from
  the set of current non-auto-generated headers. Order never matters. A
  stale classification is discarded and the default partition applies,
  with Reset set so the caller shows a "columns changed" notice once.

IMPLEMENTATIONS:
  - store/sidecar: JSON document next to the data directory (default)
  - store/sqlite: SQLite table
  - measure/store: in-memory for tests

SEE ALSO:
  - service.go: calls Reconcile after every header read
*/
package measure

import (
	"context"
	"path/filepath"
	"sort"
)

// =============================================================================
// STORE - Interface for classification persistence
// =============================================================================

// ClassificationStore persists one Classification per (fingerprint, sheet).
//
// Save replaces only the entry for sheet and leaves other sheets of the same
// fingerprint untouched. A corrupt or missing backing document is treated
// as empty and never fails the save.
//
// Load never fails: an absent, unreadable or corrupt document, or a missing
// sheet entry, all report ok=false.
type ClassificationStore interface {
	Save(ctx context.Context, fp Fingerprint, displayName, sheet string, c Classification) error
	Load(ctx context.Context, fp Fingerprint, sheet string) (Classification, bool)
}

// SheetLister is implemented by stores that can list the sheets of a
// workbook holding a saved classification, sorted by name.
type SheetLister interface {
	SavedSheets(ctx context.Context, fp Fingerprint) ([]string, error)
}

// FingerprintFor derives the fingerprint of a workbook from its resolved
// absolute path. Moving or renaming the file yields a new fingerprint.
func FingerprintFor(path string) Fingerprint {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return Fingerprint(abs)
}

// DisplayName is the file name stored alongside a classification.
func DisplayName(path string) string {
	return filepath.Base(path)
}

// =============================================================================
// RECONCILIATION - Staleness detection against the current header row
// =============================================================================

// Reconciliation is the classification a caller should present.
type Reconciliation struct {
	Classification Classification
	// Reset is set when a stored classification was discarded because the
	// headers changed. The caller shows the notice once; it blocks nothing.
	Reset bool
	// Stored is set when the returned classification came from the store.
	Stored bool
	// Unusable is set when no measurement column remains. The state is
	// valid but a record cannot be captured until the operator reassigns.
	Unusable bool
}

// AvailableHeaders returns the headers in order, minus auto-generated names.
func AvailableHeaders(headers []string, auto []string) []string {
	skip := make(map[string]struct{}, len(auto))
	for _, a := range auto {
		skip[a] = struct{}{}
	}
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if _, ok := skip[h]; !ok {
			out = append(out, h)
		}
	}
	return out
}

// DefaultPartition puts every available header named in defaultPersistent
// into Persistent and everything else into Measurement, keeping order.
func DefaultPartition(available []string, defaultPersistent []string) Classification {
	fixed := make(map[string]struct{}, len(defaultPersistent))
	for _, h := range defaultPersistent {
		fixed[h] = struct{}{}
	}
	c := Classification{Persistent: []string{}, Measurement: []string{}}
	for _, h := range available {
		if _, ok := fixed[h]; ok {
			c.Persistent = append(c.Persistent, h)
		} else {
			c.Measurement = append(c.Measurement, h)
		}
	}
	return c
}

// Reconcile compares a stored classification with the current headers.
// stored may be nil when nothing was saved.
func Reconcile(stored *Classification, headers, auto, defaultPersistent []string) Reconciliation {
	available := AvailableHeaders(headers, auto)

	var rec Reconciliation
	switch {
	case stored == nil:
		rec.Classification = DefaultPartition(available, defaultPersistent)
	case sameSet(stored.Headers(), available):
		rec.Classification = Classification{
			Persistent:  append([]string{}, stored.Persistent...),
			Measurement: append([]string{}, stored.Measurement...),
		}
		rec.Stored = true
	default:
		rec.Classification = DefaultPartition(available, defaultPersistent)
		rec.Reset = true
	}

	rec.Unusable = len(rec.Classification.Measurement) == 0
	return rec
}

func sameSet(set map[string]struct{}, names []string) bool {
	current := make(map[string]struct{}, len(names))
	for _, n := range names {
		current[n] = struct{}{}
	}
	if len(current) != len(set) {
		return false
	}
	for n := range current {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

// ValidatePartition checks a proposed classification before it is saved:
// every available header must appear in exactly one partition and no other
// names may appear.
func ValidatePartition(c Classification, available []string) error {
	want := make(map[string]struct{}, len(available))
	for _, h := range available {
		want[h] = struct{}{}
	}

	var perr PartitionError
	count := make(map[string]int)
	for _, h := range append(append([]string{}, c.Persistent...), c.Measurement...) {
		count[h]++
		if _, ok := want[h]; !ok && count[h] == 1 {
			perr.Unknown = append(perr.Unknown, h)
		}
	}
	for h, n := range count {
		if n > 1 {
			perr.Duplicated = append(perr.Duplicated, h)
		}
	}
	for _, h := range available {
		if count[h] == 0 {
			perr.Missing = append(perr.Missing, h)
		}
	}

	if len(perr.Missing)+len(perr.Unknown)+len(perr.Duplicated) == 0 {
		return nil
	}
	sort.Strings(perr.Duplicated)
	return &perr
}
