/*
Package sidecar stores column classifications as one JSON document per
workbook.

PURPOSE:
  Implements measure.ClassificationStore on the local file system. Each
  workbook gets its own document, named after the workbook and a short hash
  of its resolved absolute path, so two files with the same name in
  different folders never share a classification.

DOCUMENT FORMAT:
  {
    "file": "Messungen.xlsx",
    "sheets": {
      "Sheet1": {"persistent": ["Charge_#"], "measurement": ["Breite", "Hoehe"]}
    }
  }

FAILURE POLICY:
  - Load: missing file, unreadable file or malformed JSON -> no classification
  - Save: an unreadable or malformed existing document is replaced by an
    empty one; the write itself is atomic (temp file + rename)

USAGE:
  st := sidecar.New("data/configs", log)
  st.Save(ctx, measure.FingerprintFor(path), "Messungen.xlsx", "Sheet1", c)
*/
package sidecar

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/warp/measure-engine/measure"
)

// Document is the on-disk shape of one sidecar.
type Document struct {
	File   string                            `json:"file"`
	Sheets map[string]measure.Classification `json:"sheets"`
}

// Store implements measure.ClassificationStore with JSON files in Dir.
type Store struct {
	dir string
	log zerolog.Logger
}

func New(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log.With().Str("component", "sidecar").Logger()}
}

// PathFor returns the sidecar location for a fingerprint:
// <dir>/<stem>_<first 8 hex chars of md5(resolved path)>.json
func PathFor(dir string, fp measure.Fingerprint) string {
	sum := md5.Sum([]byte(fp))
	base := filepath.Base(string(fp))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", stem, hex.EncodeToString(sum[:])[:8]))
}

// Load returns the classification for sheet, if any. It never fails.
func (s *Store) Load(_ context.Context, fp measure.Fingerprint, sheet string) (measure.Classification, bool) {
	doc, ok := s.read(PathFor(s.dir, fp))
	if !ok {
		return measure.Classification{}, false
	}
	c, ok := doc.Sheets[sheet]
	return c, ok
}

// Save replaces the entry for sheet and rewrites the whole document.
func (s *Store) Save(_ context.Context, fp measure.Fingerprint, displayName, sheet string, c measure.Classification) error {
	path := PathFor(s.dir, fp)

	doc, ok := s.read(path)
	if !ok {
		doc = Document{}
	}
	if doc.Sheets == nil {
		doc.Sheets = make(map[string]measure.Classification)
	}
	doc.File = displayName
	doc.Sheets[sheet] = measure.Classification{
		Persistent:  nonNil(c.Persistent),
		Measurement: nonNil(c.Measurement),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sidecar dir: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	return nil
}

// Document returns the full sidecar for a fingerprint.
func (s *Store) Document(fp measure.Fingerprint) (Document, bool) {
	return s.read(PathFor(s.dir, fp))
}

// SavedSheets lists the sheets of the fingerprint's document. A missing or
// corrupt document lists nothing.
func (s *Store) SavedSheets(_ context.Context, fp measure.Fingerprint) ([]string, error) {
	doc, ok := s.Document(fp)
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(doc.Sheets))
	for name := range doc.Sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// read loads a document. Any failure is absorbed and reported as absent.
func (s *Store) read(path string) (Document, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug().Err(err).Str("sidecar", path).Msg("sidecar unreadable, treating as empty")
		}
		return Document{}, false
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Debug().Err(err).Str("sidecar", path).Msg("sidecar corrupt, treating as empty")
		return Document{}, false
	}
	return doc, true
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
