package storage

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/delaneyj/cdom/cdom"
)

var _ cdom.Codec = YAMLCodec{}

// YAMLCodec stores values as YAML documents.
type YAMLCodec struct{}

func (YAMLCodec) Marshal(v any) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("yaml marshal: %w", err)
	}
	return string(b), nil
}

func (YAMLCodec) Unmarshal(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return cdom.Normalize(v), nil
}

// Codec picks a codec by name: "json" (default) or "yaml".
func Codec(name string) (cdom.Codec, error) {
	switch name {
	case "", "json":
		return cdom.JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
