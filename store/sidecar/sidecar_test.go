package sidecar

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "configs")
	return New(dir, zerolog.Nop()), dir
}

var fp = measure.Fingerprint("/data/werk/Messungen.xlsx")

// =============================================================================
// TESTS
// =============================================================================

func TestPathFor(t *testing.T) {
	p := PathFor("cfg", fp)

	assert.Equal(t, "cfg", filepath.Dir(p))
	base := filepath.Base(p)
	assert.True(t, strings.HasPrefix(base, "Messungen_"), base)
	assert.True(t, strings.HasSuffix(base, ".json"), base)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(base, "Messungen_"), ".json"), 8)

	other := PathFor("cfg", measure.Fingerprint("/data/labor/Messungen.xlsx"))
	assert.NotEqual(t, p, other, "same name in another folder gets its own sidecar")
	assert.Equal(t, p, PathFor("cfg", fp), "stable")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	// GIVEN an empty sidecar dir that does not exist yet
	ctx := context.Background()
	st, _ := newTestStore(t)
	c := measure.Classification{Persistent: []string{"Charge_#"}, Measurement: []string{"Breite", "Höhe"}}

	// WHEN saving and loading
	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "Sheet1", c))
	got, ok := st.Load(ctx, fp, "Sheet1")

	// THEN the classification comes back exactly
	require.True(t, ok)
	assert.Equal(t, c, got)

	_, ok = st.Load(ctx, fp, "Sheet2")
	assert.False(t, ok)
}

func TestSave_ReplacesOnlyThatSheet(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "S1", measure.Classification{Persistent: []string{"A"}, Measurement: []string{"B"}}))
	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "S2", measure.Classification{Measurement: []string{"X"}}))
	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "S1", measure.Classification{Persistent: []string{}, Measurement: []string{"A", "B"}}))

	doc, ok := st.Document(fp)
	require.True(t, ok)
	assert.Equal(t, "Messungen.xlsx", doc.File)
	assert.Len(t, doc.Sheets, 2)
	assert.Equal(t, []string{"A", "B"}, doc.Sheets["S1"].Measurement)
	assert.Equal(t, []string{}, doc.Sheets["S2"].Persistent)

	sheets, err := st.SavedSheets(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, sheets)
}

func TestSave_DocumentFormat(t *testing.T) {
	ctx := context.Background()
	st, dir := newTestStore(t)

	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "Sheet1",
		measure.Classification{Persistent: nil, Measurement: []string{"Breite"}}))

	data, err := os.ReadFile(PathFor(dir, fp))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Messungen.xlsx", raw["file"])
	sheets := raw["sheets"].(map[string]any)
	sheet := sheets["Sheet1"].(map[string]any)
	assert.Equal(t, []any{}, sheet["persistent"], "empty lists are written as []")
	assert.Equal(t, []any{"Breite"}, sheet["measurement"])
	assert.Contains(t, string(data), "\n  \"file\"", "indented")
}

func TestCorruptSidecar(t *testing.T) {
	// GIVEN a sidecar holding garbage
	ctx := context.Background()
	st, dir := newTestStore(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(PathFor(dir, fp), []byte("{not json"), 0o644))

	// THEN Load reports nothing
	_, ok := st.Load(ctx, fp, "Sheet1")
	assert.False(t, ok)

	// AND Save replaces it with a valid document
	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "Sheet1", measure.Classification{Measurement: []string{"A"}}))
	got, ok := st.Load(ctx, fp, "Sheet1")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, got.Measurement)
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	st, dir := newTestStore(t)

	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "S1", measure.Classification{Measurement: []string{"A"}}))
	require.NoError(t, st.Save(ctx, fp, "Messungen.xlsx", "S2", measure.Classification{Measurement: []string{"B"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
