// Package audit enriches history records for display. The stored trail keeps
// raw principal IDs; annotation resolves them to display names at read time
// so a directory change never rewrites history.
package audit

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Directory resolves principal IDs to display names.
type Directory interface {
	// DisplayName returns the display name for a principal ID.
	DisplayName(ctx context.Context, principalID string) (string, error)
}

// StaticDirectory is a Directory backed by a YAML file mapping principal IDs
// to names. Useful for small deployments and tests.
type StaticDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

// staticDirectoryFile is the on-disk shape of the directory file.
type staticDirectoryFile struct {
	Principals map[string]string `yaml:"principals"`
}

// NewStaticDirectory creates a directory from an in-memory mapping.
func NewStaticDirectory(names map[string]string) *StaticDirectory {
	if names == nil {
		names = make(map[string]string)
	}
	return &StaticDirectory{names: names}
}

// LoadStaticDirectory reads a directory mapping from a YAML file.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file %q: %w", path, err)
	}

	var file staticDirectoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse directory file %q: %w", path, err)
	}
	return NewStaticDirectory(file.Principals), nil
}

// DisplayName implements Directory.
func (d *StaticDirectory) DisplayName(_ context.Context, principalID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	name, ok := d.names[principalID]
	if !ok {
		return "", fmt.Errorf("principal %q not in directory", principalID)
	}
	return name, nil
}
