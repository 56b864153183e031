package intent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// document is the on-disk layout:
//
//	intents:
//	  - id: time
//	    patterns: [time, current time]
//	    action: get_time
//	    responses: ["The current time is"]
type document struct {
	Intents []Intent `yaml:"intents"`
}

// legacyBody is the value side of the keyed layout, where each intent id maps
// to its body, e.g. {"time": {"patterns": [...], "action": "get_time"}}.
// The order of the keys in the file is the declaration order.
type legacyBody struct {
	Patterns  []string `yaml:"patterns"`
	Action    ActionID `yaml:"action"`
	Responses []string `yaml:"responses"`
}

// Parse decodes a registry from YAML or JSON bytes. Both the list layout and
// the keyed layout are accepted; declaration order is preserved in either.
func Parse(data []byte) (*Registry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse intents: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return Empty(), nil
	}

	body := root.Content[0]
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse intents: expected a mapping at the top level")
	}

	for i := 0; i+1 < len(body.Content); i += 2 {
		if body.Content[i].Value == "intents" {
			var doc document
			if err := body.Decode(&doc); err != nil {
				return nil, fmt.Errorf("parse intents: %w", err)
			}
			return NewRegistry(doc.Intents)
		}
	}

	intents := make([]Intent, 0, len(body.Content)/2)
	for i := 0; i+1 < len(body.Content); i += 2 {
		id := body.Content[i].Value
		var lb legacyBody
		if err := body.Content[i+1].Decode(&lb); err != nil {
			return nil, fmt.Errorf("parse intent %q: %w", id, err)
		}
		intents = append(intents, Intent{
			ID:        id,
			Patterns:  lb.Patterns,
			Action:    lb.Action,
			Responses: lb.Responses,
		})
	}
	return NewRegistry(intents)
}

// Load reads a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intents: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// LoadOrCreate reads path, writing the default catalog there first when the
// file does not exist.
func LoadOrCreate(path string) (*Registry, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		def := Default()
		if err := Save(path, def); err != nil {
			return nil, err
		}
		return def, nil
	}
	return Load(path)
}

// Marshal encodes r in the list layout.
func Marshal(r *Registry) ([]byte, error) {
	data, err := yaml.Marshal(document{Intents: r.Intents()})
	if err != nil {
		return nil, fmt.Errorf("marshal intents: %w", err)
	}
	return data, nil
}

// Save writes r to path as YAML, replacing the file atomically.
func Save(path string, r *Registry) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create intents directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write intents: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write intents: %w", err)
	}
	return nil
}
