package helm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_Deep(t *testing.T) {
	base := Values{
		"ingress": map[string]any{"enabled": false, "class": "nginx"},
		"image":   Values{"tag": "main"},
	}
	override := Values{
		"ingress": map[string]any{"enabled": true},
		"image":   "replaced",
	}

	got := Merge(base, override)
	assert.Equal(t, map[string]any{"enabled": true, "class": "nginx"}, got["ingress"])
	assert.Equal(t, "replaced", got["image"])
	assert.Equal(t, false, base["ingress"].(map[string]any)["enabled"], "inputs are not modified")
}

func TestHash_NumbersCompareEqual(t *testing.T) {
	fromCode, err := Values{"replicaCount": 1, "persistence": Values{"size": "10Gi"}}.Hash()
	require.NoError(t, err)

	parsed, err := FromYAML([]byte("persistence:\n  size: 10Gi\nreplicaCount: 1\n"))
	require.NoError(t, err)
	fromYAML, err := parsed.Hash()
	require.NoError(t, err)

	assert.Equal(t, fromCode, fromYAML)

	other, err := Values{"replicaCount": 2}.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, fromCode, other)
}

func TestHash_EmptyValues(t *testing.T) {
	var nilValues Values
	a, err := nilValues.Hash()
	require.NoError(t, err)
	b, err := Values{}.Hash()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadFile(t *testing.T) {
	values, err := ReadFile("")
	require.NoError(t, err)
	assert.Empty(t, values)

	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extraEnvVars:\n  - name: WEBUI_NAME\n    value: Chat\n"), 0o600))
	values, err = ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, values["extraEnvVars"], 1)

	require.NoError(t, os.WriteFile(path, []byte("a: [\n"), 0o600))
	_, err = ReadFile(path)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
