package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// File is the slot assignment registry: a flat JSON object mapping slot
// names to state names, stored at a fixed path. The zero mapping is legal;
// a missing file reads as an empty map so fresh hosts need no setup step.
type File struct {
	path string
}

// New returns a registry backed by the file at path.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the full assignment map. A missing file is an empty map, not
// an error.
func (f *File) Load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read assignments file: %w", err)
	}

	assignments := map[string]string{}
	if err := json.Unmarshal(data, &assignments); err != nil {
		return nil, fmt.Errorf("failed to parse assignments file %s: %w", f.path, err)
	}
	return assignments, nil
}

// Save atomically replaces the registry with the given map. The new
// content is written to a temporary file in the same directory and renamed
// over the old one, so readers never observe a partial write.
func (f *File) Save(assignments map[string]string) error {
	data, err := json.MarshalIndent(assignments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode assignments: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".assignments-*")
	if err != nil {
		return fmt.Errorf("failed to create temp assignments file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write assignments: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod assignments: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close assignments: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace assignments file: %w", err)
	}
	return nil
}
