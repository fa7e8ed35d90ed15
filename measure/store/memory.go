// Package store provides ClassificationStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/measure-engine/measure"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	documents   map[measure.Fingerprint]*document
	submissions []measure.Submission
}

type document struct {
	file   string
	sheets map[string]measure.Classification
}

func NewMemory() *Memory {
	return &Memory{documents: make(map[measure.Fingerprint]*document)}
}

// Save replaces the entry for sheet. Other sheets are untouched.
func (m *Memory) Save(_ context.Context, fp measure.Fingerprint, displayName, sheet string, c measure.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[fp]
	if !ok {
		doc = &document{sheets: make(map[string]measure.Classification)}
		m.documents[fp] = doc
	}
	doc.file = displayName
	doc.sheets[sheet] = copyClassification(c)
	return nil
}

func (m *Memory) Load(_ context.Context, fp measure.Fingerprint, sheet string) (measure.Classification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[fp]
	if !ok {
		return measure.Classification{}, false
	}
	c, ok := doc.sheets[sheet]
	if !ok {
		return measure.Classification{}, false
	}
	return copyClassification(c), true
}

// SavedSheets lists the sheet names stored for a fingerprint.
func (m *Memory) SavedSheets(_ context.Context, fp measure.Fingerprint) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[fp]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(doc.sheets))
	for name := range doc.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Record appends a submission to the in-memory log.
func (m *Memory) Record(_ context.Context, sub measure.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub.ColumnsCreated = append([]string(nil), sub.ColumnsCreated...)
	m.submissions = append(m.submissions, sub)
	return nil
}

// Submissions returns the sheet's submissions, newest first.
func (m *Memory) Submissions(_ context.Context, fp measure.Fingerprint, sheet string, limit int) ([]measure.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []measure.Submission
	for i := len(m.submissions) - 1; i >= 0; i-- {
		sub := m.submissions[i]
		if sub.Fingerprint != fp || sub.Sheet != sheet {
			continue
		}
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyClassification(c measure.Classification) measure.Classification {
	return measure.Classification{
		Persistent:  append([]string{}, c.Persistent...),
		Measurement: append([]string{}, c.Measurement...),
	}
}
