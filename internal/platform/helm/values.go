package helm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Values represents helm chart values as a map.
type Values map[string]any

// Merge deep-merges values maps; later maps take precedence. Nested maps are
// merged key by key, any other value replaces the earlier one.
func Merge(valueMaps ...Values) Values {
	result := make(Values)
	for _, m := range valueMaps {
		mergeInto(result, m)
	}
	return result
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		dstMap, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			merged := make(map[string]any, len(dstMap))
			mergeInto(merged, dstMap)
			mergeInto(merged, srcMap)
			dst[k] = merged
			continue
		}
		if srcIsMap {
			copied := make(map[string]any, len(srcMap))
			mergeInto(copied, srcMap)
			dst[k] = copied
			continue
		}
		dst[k] = v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Values:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// ToYAML converts values to YAML bytes with sorted keys.
func (v Values) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode values to YAML: %w", err)
	}
	return out, nil
}

// Hash is a sha256 of the values' canonical YAML. Integers and integral
// floats hash alike, so values read back from a release compare equal.
func (v Values) Hash() (string, error) {
	if len(v) == 0 {
		v = Values{}
	}
	out, err := v.ToYAML()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(out)
	return hex.EncodeToString(sum[:]), nil
}

// FromYAML parses YAML bytes into Values.
func FromYAML(data []byte) (Values, error) {
	values := Values{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse YAML values: %w", err)
	}
	return values, nil
}

// ReadFile parses a values file. An empty path yields empty values.
func ReadFile(path string) (Values, error) {
	if path == "" {
		return Values{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values file: %w", err)
	}
	values, err := FromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("values file %s: %w", path, err)
	}
	return values, nil
}
