package configread

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML document into a Tree. Grounded on the teacher's
// feeders/yaml.go, which decodes into a generic map before re-marshalling
// individual keys; here the whole document is decoded once since the
// reader needs every top-level key, not just one.
func ParseYAML(contents []byte) (Tree, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	normalized, _ := normalizeKeys(raw).(map[string]any)
	return newMapTree(normalized), nil
}
