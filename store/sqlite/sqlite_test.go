package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var fp = measure.Fingerprint("/data/werk/Messungen.xlsx")

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := measure.Classification{Persistent: []string{"Charge_#"}, Measurement: []string{"Breite", "Höhe"}}

	require.NoError(t, store.Save(ctx, fp, "Messungen.xlsx", "Sheet1", c))

	got, ok := store.Load(ctx, fp, "Sheet1")
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestLoad_Missing(t *testing.T) {
	store := newTestStore(t)

	_, ok := store.Load(context.Background(), fp, "Sheet1")
	assert.False(t, ok)
}

func TestSave_UpsertReplacesOnlyThatSheet(t *testing.T) {
	// GIVEN two sheets of one workbook
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Save(ctx, fp, "Messungen.xlsx", "S1", measure.Classification{Persistent: []string{"A"}, Measurement: []string{"B"}}))
	require.NoError(t, store.Save(ctx, fp, "Messungen.xlsx", "S2", measure.Classification{Measurement: []string{"X"}}))

	// WHEN S1 is saved again
	require.NoError(t, store.Save(ctx, fp, "Messungen.xlsx", "S1", measure.Classification{Measurement: []string{"A", "B"}}))

	// THEN S1 is replaced and S2 is untouched
	s1, ok := store.Load(ctx, fp, "S1")
	require.True(t, ok)
	assert.Equal(t, []string{}, s1.Persistent)
	assert.Equal(t, []string{"A", "B"}, s1.Measurement)

	s2, ok := store.Load(ctx, fp, "S2")
	require.True(t, ok)
	assert.Equal(t, []string{"X"}, s2.Measurement)

	sheets, err := store.SavedSheets(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, sheets)
}

func TestLoad_CorruptRowIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.db.Exec(`INSERT INTO classifications VALUES (?, 'S1', 'f.xlsx', '{bad', '[]', '2024-01-01T00:00:00Z')`, string(fp))
	require.NoError(t, err)

	_, ok := store.Load(ctx, fp, "S1")
	assert.False(t, ok)
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmissions_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, measure.Submission{
		OperationID: "op-1", Fingerprint: fp, Sheet: "S1", OperatorID: "w-1",
		RowNumber: 2, Success: true, ColumnsCreated: []string{"Zeit", "Mitarbeiter"}, At: base,
	}))
	require.NoError(t, store.Record(ctx, measure.Submission{
		OperationID: "op-2", Fingerprint: fp, Sheet: "S1", OperatorID: "w-1",
		ErrorKind: measure.KindFileLocked, ErrorMessage: "file is locked", At: base.Add(time.Minute),
	}))
	require.NoError(t, store.Record(ctx, measure.Submission{
		OperationID: "op-3", Fingerprint: fp, Sheet: "S2", Success: true, RowNumber: 9, At: base,
	}))

	got, err := store.Submissions(ctx, fp, "S1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "op-2", got[0].OperationID)
	assert.False(t, got[0].Success)
	assert.Equal(t, measure.KindFileLocked, got[0].ErrorKind)
	assert.Equal(t, 0, got[0].RowNumber)

	assert.Equal(t, "op-1", got[1].OperationID)
	assert.True(t, got[1].Success)
	assert.Equal(t, 2, got[1].RowNumber)
	assert.Equal(t, []string{"Zeit", "Mitarbeiter"}, got[1].ColumnsCreated)
	assert.True(t, base.Equal(got[1].At))

	limited, err := store.Submissions(ctx, fp, "S1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
