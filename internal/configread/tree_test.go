package configread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAMLNestedLookup(t *testing.T) {
	tree, err := ParseYAML([]byte("external_config:\n  external_name: D\n  nested:\n    value: 42\n"))
	require.NoError(t, err)

	name := tree.GetString("external_config.external_name")
	assert.Equal(t, "D", name)

	v, ok := tree.Get("external_config.nested.value")
	require.True(t, ok)
	assert.EqualValues(t, 42, v)

	_, ok = tree.Get("external_config.missing")
	assert.False(t, ok)
}

func TestParseTOMLNestedLookup(t *testing.T) {
	tree, err := ParseTOML([]byte("[external_config]\nexternal_name = \"D\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "D", tree.GetString("external_config.external_name"))
}

func TestTreeEqual(t *testing.T) {
	a, err := ParseYAML([]byte("external_config:\n  external_name: D\n"))
	require.NoError(t, err)
	b, err := ParseYAML([]byte("external_config:\n  external_name: D\n"))
	require.NoError(t, err)
	c, err := ParseYAML([]byte("external_config:\n  external_name: E\n"))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestObjectConfigSameAs(t *testing.T) {
	tree, err := ParseYAML([]byte("external_config:\n  external_name: D\n"))
	require.NoError(t, err)
	a := ObjectConfig{Tree: tree, KeyInConfig: "external_config"}
	b := ObjectConfig{Tree: tree, KeyInConfig: "external_config", RepositoryName: "R2", Path: "other.yaml"}
	assert.True(t, a.SameAs(b), "origin fields must not affect SameAs")
}
