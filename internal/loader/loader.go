// Package loader reads workflow definitions from YAML or JSON files.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/relay/internal/model"
)

// ErrEmptyDefinition is returned for a blank definition payload.
var ErrEmptyDefinition = errors.New("definition payload is empty")

var extensions = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// ParseDefinition decodes a workflow definition from YAML or JSON bytes.
// Variables declared without a name take their map key.
func ParseDefinition(data []byte) (model.WorkflowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return model.WorkflowDefinition{}, ErrEmptyDefinition
	}
	var def model.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("decode definition: %w", err)
	}
	for key, v := range def.Variables {
		if v.Name == "" {
			v.Name = key
			def.Variables[key] = v
		}
	}
	return def, nil
}

// LoadReader reads a definition from r.
func LoadReader(r io.Reader) (model.WorkflowDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("read definition: %w", err)
	}
	return ParseDefinition(data)
}

// LoadFile loads a definition from path. A definition without an id is
// named after the file.
func LoadFile(path string) (model.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	if def.ID == "" {
		base := filepath.Base(path)
		def.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, nil
}

// LoadDir loads every .yaml, .yml and .json file directly under dir, in
// file name order. Subdirectories are not descended.
func LoadDir(dir string) ([]model.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	defs := make([]model.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		def, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
