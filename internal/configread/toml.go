package configread

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ParseTOML decodes a TOML document into a Tree. Grounded on the teacher's
// feeders/toml.go, which uses the same BurntSushi/toml decoder.
func ParseTOML(contents []byte) (Tree, error) {
	var raw map[string]any
	if err := toml.Unmarshal(contents, &raw); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	normalized, _ := normalizeKeys(raw).(map[string]any)
	return newMapTree(normalized), nil
}
