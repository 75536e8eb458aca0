// Package plan reads and writes the plan documents that make up a project
// breakdown: one JSON document per broken-down node plus the phases.json
// aggregate holding the top-level phases.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/ShayCichocki/phaser/pkg/models"
)

const (
	// DefaultDir is the plan directory relative to the project root.
	DefaultDir = ".ai/plan"
	// AggregateFile is the reserved name of the root document.
	AggregateFile = "phases.json"
	// IndexFile is written by the plan analyzer and is not a node document.
	IndexFile = "index.json"

	stagingDir = ".staging"
)

// File is a node document found in the plan directory.
type File struct {
	// ID is the document's base name without extension.
	ID string
	// Path is the absolute or dir-relative path to the document.
	Path string
}

// Store is the sole persistence layer for plan documents.
// Writes are whole-document rewrites; the engine assumes a single writer process.
type Store struct {
	dir      string
	repairer Repairer
	logf     func(format string, args ...interface{})

	// repairMu serializes repair attempts so two readers of the same broken
	// file do not both call out to the repairer.
	repairMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithRepairer enables the repair hook for malformed documents.
func WithRepairer(r Repairer) Option {
	return func(s *Store) {
		s.repairer = r
	}
}

// WithLogger sets a printf-style logger for warnings.
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(s *Store) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// Open returns a store rooted at dir. The directory need not exist yet.
func Open(dir string, opts ...Option) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	s := &Store{
		dir:  dir,
		logf: func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the plan directory.
func (s *Store) Dir() string {
	return s.dir
}

// Init creates the plan directory.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create plan directory: %w", err)
	}
	return nil
}

// AggregatePath returns the path of phases.json.
func (s *Store) AggregatePath() string {
	return filepath.Join(s.dir, AggregateFile)
}

// DocumentPath returns the canonical path for a node document.
func (s *Store) DocumentPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Files lists every node document under the plan directory, recursively.
// The aggregate, index.json and staged documents are excluded. The listing
// is read from disk on every call.
func (s *Store) Files() ([]File, error) {
	var files []File
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == stagingDir {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".json") || name == IndexFile || name == AggregateFile {
			return nil
		}
		files = append(files, File{ID: strings.TrimSuffix(name, ".json"), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list plan files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool {
		return models.CompareIDs(files[i].ID, files[j].ID) < 0
	})
	return files, nil
}

// IDs returns the set of ids that have their own document.
func (s *Store) IDs() (map[string]string, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(files))
	for _, f := range files {
		if _, dup := ids[f.ID]; !dup {
			ids[f.ID] = f.Path
		}
	}
	return ids, nil
}

// HasDocument reports whether id has its own document.
func (s *Store) HasDocument(id string) bool {
	_, ok := s.locate(id)
	return ok
}

// ChildIDs returns the ids of documents that are direct children of id.
func (s *Store) ChildIDs(id string) ([]string, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if models.IsDirectChild(id, f.ID) {
			out = append(out, f.ID)
		}
	}
	return out, nil
}

// locate finds the document for id, preferring the canonical path.
func (s *Store) locate(id string) (string, bool) {
	canonical := s.DocumentPath(id)
	if _, err := os.Stat(canonical); err == nil {
		return canonical, true
	}
	ids, err := s.IDs()
	if err != nil {
		return "", false
	}
	path, ok := ids[id]
	return path, ok
}

// LoadDocument reads the document for id. ok is false when no document
// exists. A malformed document is handed to the repair hook if one is set;
// otherwise it degrades to an empty document.
func (s *Store) LoadDocument(id string) (doc *models.Document, ok bool, err error) {
	path, found := s.locate(id)
	if !found {
		return nil, false, nil
	}
	doc = &models.Document{}
	if err := s.readJSON(path, doc); err != nil {
		return nil, false, err
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, true, nil
}

// SaveDocument atomically rewrites the document at its current location,
// or at the canonical path when it does not exist yet.
func (s *Store) SaveDocument(doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return errors.New("save document: missing id")
	}
	path, found := s.locate(doc.ID)
	if !found {
		path = s.DocumentPath(doc.ID)
	}
	return writeJSON(path, doc)
}

// LoadAggregate reads phases.json. ok is false when it does not exist.
func (s *Store) LoadAggregate() (agg *models.Aggregate, ok bool, err error) {
	path := s.AggregatePath()
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, false, nil
	}
	agg = &models.Aggregate{}
	if err := s.readJSON(path, agg); err != nil {
		return nil, false, err
	}
	return agg, true, nil
}

// SaveAggregate atomically rewrites phases.json.
func (s *Store) SaveAggregate(agg *models.Aggregate) error {
	return writeJSON(s.AggregatePath(), agg)
}

// readJSON decodes path into v. Only I/O failures are returned; decode
// failures go through repair or leave v at its zero value.
func (s *Store) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	parseErr := json.Unmarshal(data, v)
	if parseErr == nil {
		return nil
	}

	if s.repairer != nil {
		fixed, repairErr := s.repair(path, data, parseErr)
		if repairErr == nil {
			if err := json.Unmarshal(fixed, v); err == nil {
				return nil
			}
		}
		s.logf("[plan] repair of %s failed: %v", path, repairErr)
	} else {
		s.logf("[plan] malformed document %s: %v", path, parseErr)
	}

	// Fall back to the empty document.
	resetZero(v)
	return nil
}

func resetZero(v interface{}) {
	switch t := v.(type) {
	case *models.Document:
		*t = models.Document{}
	case *models.Aggregate:
		*t = models.Aggregate{}
	}
}

// writeJSON marshals v with two-space indentation and replaces path atomically.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
