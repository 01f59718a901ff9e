// Package statefile persists a registry table as one JSON object keyed by
// record id. Writes go to a temp file and are renamed into place.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Load decodes the JSON object at path into v.
// A missing file is not an error and leaves v untouched.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("statefile: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("statefile: incompatible state in %s: %w", path, err)
	}
	return nil
}

// PersistError is returned by Save. The in-memory table the caller holds
// is already updated when it occurs.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("statefile: persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsPersist reports whether err came from a failed Save.
func IsPersist(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

// Save writes v to path atomically.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &PersistError{Path: path, Err: fmt.Errorf("create directory: %w", err)}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistError{Path: path, Err: fmt.Errorf("marshal: %w", err)}
	}
	if err := writeAtomic(path, data); err != nil {
		return &PersistError{Path: path, Err: err}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
