package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nodeflow/pkg/graph"
)

// Loader reads settings and documents, checking both against the CUE schemas.
type Loader struct {
	schemas *SchemaRegistry
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{schemas: NewSchemaRegistry()}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// LoadSettings reads settings from a YAML or CUE file over DefaultSettings. An empty path yields
// the defaults.
func (l *Loader) LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, s.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	switch filepath.Ext(path) {
	case ".cue":
		data, err = cueToJSON(path, data)
		if err != nil {
			return nil, err
		}
		if err := l.schemas.ValidateJSON(SchemaSettings, data); err != nil {
			return nil, fmt.Errorf("settings %s: %w", path, err)
		}
	case ".yaml", ".yml":
		var generic map[string]interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
		if generic != nil {
			if err := l.schemas.Validate(SchemaSettings, generic); err != nil {
				return nil, fmt.Errorf("settings %s: %w", path, err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported settings format %q", filepath.Ext(path))
	}

	// JSON is valid YAML, so both formats decode the same way, durations included.
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadDocument reads a document from a JSON or CUE file. CUE files must evaluate to a concrete
// document at their root.
func (l *Loader) LoadDocument(path string) (graph.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return graph.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	return l.ParseDocument(path, data)
}

// ParseDocument parses document data; the extension of name selects the format.
func (l *Loader) ParseDocument(name string, data []byte) (graph.Document, error) {
	if filepath.Ext(name) == ".cue" {
		var err error
		if data, err = cueToJSON(name, data); err != nil {
			return graph.Document{}, err
		}
	}
	if err := l.schemas.ValidateJSON(SchemaDocument, data); err != nil {
		return graph.Document{}, fmt.Errorf("document %s: %w", name, err)
	}
	return graph.ParseDocument(data)
}

// WriteDocument writes doc as JSON, replacing path atomically.
func WriteDocument(path string, doc graph.Document) error {
	if ext := filepath.Ext(path); ext != ".json" {
		return fmt.Errorf("documents can only be written as JSON, not %q", ext)
	}
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nodeflow-*.json")
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func cueToJSON(name string, src []byte) ([]byte, error) {
	val := cuecontext.New().CompileBytes(src, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", name, convertCUEErrors(err))
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s is not concrete: %w", name, convertCUEErrors(err))
	}
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", name, err)
	}
	return data, nil
}
