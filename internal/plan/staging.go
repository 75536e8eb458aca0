package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/phaser/pkg/models"
)

// StagingPath returns where a document for id is staged before promotion.
func (s *Store) StagingPath(id string) string {
	return filepath.Join(s.dir, stagingDir, id+".json")
}

// Stage writes doc to the staging area. Staged documents are invisible to
// Files and therefore to every resolver scan.
func (s *Store) Stage(doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return errors.New("stage document: missing id")
	}
	return writeJSON(s.StagingPath(doc.ID), doc)
}

// Promote moves the staged document for id over the existing document, or
// to the canonical location when there is none.
func (s *Store) Promote(id string) error {
	src := s.StagingPath(id)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("promote %s: nothing staged: %w", id, err)
	}
	dst := s.DocumentPath(id)
	if existing, ok := s.locate(id); ok {
		dst = existing
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("promote %s: %w", id, err)
	}
	return nil
}

// Discard removes the staged document for id, if any.
func (s *Store) Discard(id string) error {
	err := os.Remove(s.StagingPath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard staged %s: %w", id, err)
	}
	return nil
}
