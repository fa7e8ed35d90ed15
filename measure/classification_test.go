package measure_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/measure-engine/measure"
)

var (
	autoNames         = []string{"Zeit", "Mitarbeiter"}
	defaultPersistent = []string{"Charge_#", "FA_#", "Rolle_#"}
)

// =============================================================================
// DEFAULT PARTITION TESTS
// =============================================================================

func TestAvailableHeaders_ExcludesAutoColumns(t *testing.T) {
	got := measure.AvailableHeaders([]string{"Charge_#", "Zeit", "Breite", "Mitarbeiter"}, autoNames)

	assert.Equal(t, []string{"Charge_#", "Breite"}, got)
}

func TestDefaultPartition(t *testing.T) {
	c := measure.DefaultPartition([]string{"Charge_#", "Breite", "FA_#", "Höhe"}, defaultPersistent)

	assert.Equal(t, []string{"Charge_#", "FA_#"}, c.Persistent)
	assert.Equal(t, []string{"Breite", "Höhe"}, c.Measurement)
}

func TestDefaultPartition_EmptyIsNotNil(t *testing.T) {
	c := measure.DefaultPartition(nil, defaultPersistent)

	assert.NotNil(t, c.Persistent)
	assert.NotNil(t, c.Measurement)
}

// =============================================================================
// RECONCILIATION TESTS
// =============================================================================

func TestReconcile_NothingStored(t *testing.T) {
	rec := measure.Reconcile(nil, []string{"Charge_#", "Breite"}, autoNames, defaultPersistent)

	assert.False(t, rec.Reset)
	assert.False(t, rec.Stored)
	assert.False(t, rec.Unusable)
	assert.Equal(t, []string{"Charge_#"}, rec.Classification.Persistent)
	assert.Equal(t, []string{"Breite"}, rec.Classification.Measurement)
}

func TestReconcile_SameSetIsOrderIndependent(t *testing.T) {
	// GIVEN a stored split and the same headers in another order, plus the
	// auto columns the writer added
	stored := &measure.Classification{Persistent: []string{"Breite"}, Measurement: []string{"Höhe", "Charge_#"}}
	headers := []string{"Höhe", "Charge_#", "Breite", "Zeit", "Mitarbeiter"}

	// WHEN reconciling
	rec := measure.Reconcile(stored, headers, autoNames, defaultPersistent)

	// THEN the stored split is kept as saved
	assert.False(t, rec.Reset)
	assert.True(t, rec.Stored)
	assert.Equal(t, stored.Persistent, rec.Classification.Persistent)
	assert.Equal(t, stored.Measurement, rec.Classification.Measurement)
}

func TestReconcile_ChangedHeadersReset(t *testing.T) {
	// GIVEN a stored split for [A, B] and a sheet that now reads [A, B, C]
	stored := &measure.Classification{Persistent: []string{"A"}, Measurement: []string{"B"}}

	// WHEN reconciling
	rec := measure.Reconcile(stored, []string{"A", "B", "C"}, autoNames, []string{"A"})

	// THEN the stored split is discarded for the default one
	assert.True(t, rec.Reset)
	assert.False(t, rec.Stored)
	assert.Equal(t, []string{"A"}, rec.Classification.Persistent)
	assert.Equal(t, []string{"B", "C"}, rec.Classification.Measurement)
}

func TestReconcile_RemovedHeaderResets(t *testing.T) {
	stored := &measure.Classification{Persistent: []string{"A"}, Measurement: []string{"B", "C"}}

	rec := measure.Reconcile(stored, []string{"A", "B"}, autoNames, nil)

	assert.True(t, rec.Reset)
	assert.Equal(t, []string{"A", "B"}, rec.Classification.Measurement)
}

func TestReconcile_NoMeasurementIsUnusable(t *testing.T) {
	stored := &measure.Classification{Persistent: []string{"Charge_#"}, Measurement: []string{}}

	rec := measure.Reconcile(stored, []string{"Charge_#"}, autoNames, defaultPersistent)

	assert.True(t, rec.Stored)
	assert.True(t, rec.Unusable)
}

func TestReconcile_DoesNotAliasStored(t *testing.T) {
	stored := &measure.Classification{Persistent: []string{"A"}, Measurement: []string{"B"}}

	rec := measure.Reconcile(stored, []string{"A", "B"}, nil, nil)
	rec.Classification.Persistent[0] = "changed"

	assert.Equal(t, "A", stored.Persistent[0])
}

// =============================================================================
// PARTITION CHECK TESTS
// =============================================================================

func TestValidatePartition(t *testing.T) {
	available := []string{"A", "B", "C"}

	t.Run("exact cover", func(t *testing.T) {
		err := measure.ValidatePartition(measure.Classification{
			Persistent: []string{"A"}, Measurement: []string{"C", "B"},
		}, available)
		assert.NoError(t, err)
	})

	t.Run("missing unknown duplicated", func(t *testing.T) {
		err := measure.ValidatePartition(measure.Classification{
			Persistent: []string{"A", "X"}, Measurement: []string{"A"},
		}, available)

		require.Error(t, err)
		assert.ErrorIs(t, err, measure.ErrPartitionMismatch)
		var perr *measure.PartitionError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, []string{"B", "C"}, perr.Missing)
		assert.Equal(t, []string{"X"}, perr.Unknown)
		assert.Equal(t, []string{"A"}, perr.Duplicated)
		assert.True(t, measure.IsClientError(err))
	})
}

// =============================================================================
// FINGERPRINT TESTS
// =============================================================================

func TestFingerprintFor_ResolvesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Messungen.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	fp := measure.FingerprintFor(path)

	assert.True(t, filepath.IsAbs(string(fp)))
	assert.Equal(t, fp, measure.FingerprintFor(filepath.Join(dir, ".", "Messungen.xlsx")))
	assert.Equal(t, "Messungen.xlsx", measure.DisplayName(path))
}

func TestFingerprintFor_DifferentFoldersDiffer(t *testing.T) {
	a := measure.FingerprintFor(filepath.Join(t.TempDir(), "Messungen.xlsx"))
	b := measure.FingerprintFor(filepath.Join(t.TempDir(), "Messungen.xlsx"))

	assert.NotEqual(t, a, b)
}
