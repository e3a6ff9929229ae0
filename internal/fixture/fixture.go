// Package fixture loads flow runs from YAML or JSON files.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"flow-activity/internal/storage"
	"flow-activity/internal/util"
)

type document struct {
	Runs []storage.Run `json:"runs" yaml:"runs"`
}

// Load reads runs from path. The file holds either a list of runs or a
// mapping with a "runs" key, as YAML or JSON.
func Load(path string) ([]storage.Run, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	runs, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return runs, nil
}

// Parse decodes runs from YAML or JSON bytes.
func Parse(b []byte) ([]storage.Run, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, nil
	}

	// JSON keeps RFC 3339 strings working for time fields.
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return parseYAML(trimmed)
}

func parseJSON(b []byte) ([]storage.Run, error) {
	if util.IsJSONArray(b) {
		var runs []storage.Run
		if err := json.Unmarshal(b, &runs); err != nil {
			return nil, err
		}
		return runs, nil
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc.Runs, nil
}

func parseYAML(b []byte) ([]storage.Run, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var runs []storage.Run
		if err := root.Decode(&runs); err != nil {
			return nil, err
		}
		return runs, nil
	case yaml.MappingNode:
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.Runs, nil
	default:
		return nil, fmt.Errorf("expected a list of runs or a runs mapping")
	}
}
