// Package definition loads declarative workflow definitions from YAML,
// validates them, and compiles them into the immutable registries the engine
// runs against.
package definition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opero/lifeline/model"
)

// Loader reads entity definitions from the filesystem.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll walks the given directories and parses every *.yaml / *.yml file
// found into an EntityDefinition. Files are discovered depth-first in
// lexical order, so load order is stable across runs.
func (l *Loader) LoadAll(directories []string) ([]model.EntityDefinition, error) {
	var defs []model.EntityDefinition
	for _, dir := range directories {
		walk := func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isDefinitionFile(path) {
				return err
			}
			def, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		}
		if err := filepath.WalkDir(dir, walk); err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}
	return defs, nil
}

// LoadFile parses one YAML definition file, stamping it with its SHA-256
// checksum and source path so introspection can report definition provenance.
func (l *Loader) LoadFile(path string) (model.EntityDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.EntityDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def model.EntityDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.EntityDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	def.Checksum = hex.EncodeToString(sum[:])
	def.SourceFile = path
	return def, nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
