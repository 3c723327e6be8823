// Package store persists phase artifacts and the run ledger.
//
// Artifacts are one JSON document per phase (UTF-8, 2-space indent) in a
// single directory. Writes go to a temp file and are renamed into place so a
// reader never observes a half-written artifact. The ledger is a SQLite
// database recording phase runs and gateway calls.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"skeptic/internal/logging"
)

// Key names one artifact file.
type Key string

const (
	KeyExtracted    Key = "extracted_data.json"
	KeyQuestions    Key = "pms_questions.json"
	KeyConsolidated Key = "final_questions.json"
	KeyRisks        Key = "risk_assessment.json"
	KeyDerisked     Key = "detailed_risk_report_with_strategies.json"
	KeyReflection   Key = "strategic_reflection.json"
)

// AllKeys lists the artifact keys in phase order.
var AllKeys = []Key{KeyExtracted, KeyQuestions, KeyConsolidated, KeyRisks, KeyDerisked, KeyReflection}

// ErrNotFound is returned by Load when the artifact file does not exist.
var ErrNotFound = errors.New("artifact not found")

// State is the on-disk condition of one artifact.
type State int

const (
	StateMissing State = iota
	StateReady
	StateCorrupt
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateCorrupt:
		return "corrupt"
	default:
		return "missing"
	}
}

// ArtifactStore reads and writes artifacts under one directory.
type ArtifactStore struct {
	dir string
	mu  sync.Mutex
}

// NewArtifactStore creates dir if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *ArtifactStore) Dir() string { return s.dir }

// Path returns the file path for key.
func (s *ArtifactStore) Path(key Key) string {
	return filepath.Join(s.dir, string(key))
}

// Exists reports whether the artifact file is present.
func (s *ArtifactStore) Exists(key Key) bool {
	_, err := os.Stat(s.Path(key))
	return err == nil
}

// Check reports whether key is missing, loadable, or unreadable.
func (s *ArtifactStore) Check(key Key) State {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateCorrupt
	}
	if !json.Valid(data) {
		return StateCorrupt
	}
	return StateReady
}

// Save writes v as indented JSON, replacing any previous version whole.
func (s *ArtifactStore) Save(key Key, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "save "+string(key))
	defer timer.Stop()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+string(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}

	logging.Store("saved %s (%d bytes)", key, buf.Len())
	return nil
}

// Load decodes the artifact into v. Missing files return ErrNotFound.
func (s *ArtifactStore) Load(key Key, v any) error {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.StoreError("failed to decode %s: %v", key, err)
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (s *ArtifactStore) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	logging.StoreDebug("deleted %s", key)
	return nil
}

// LoadAs is a typed wrapper around Load.
func LoadAs[T any](s *ArtifactStore, key Key) (T, error) {
	var v T
	err := s.Load(key, &v)
	return v, err
}

// KeyForFile maps a file name back to its Key.
func KeyForFile(name string) (Key, bool) {
	base := filepath.Base(name)
	for _, k := range AllKeys {
		if string(k) == base {
			return k, true
		}
	}
	return "", false
}
