package schema

import (
	"fmt"
	"sort"
)

// ConfigSchema describes the structure of a connector's JSON config object.
type ConfigSchema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// Property of a config schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Object returns an object schema with the given properties.
func Object(properties map[string]*Property, required ...string) *ConfigSchema {
	return &ConfigSchema{Type: "object", Properties: properties, Required: required}
}

// ValidateConfig checks config against the schema: required keys must be
// present, and present values must agree with the declared primitive type.
// All findings are returned, not just the first.
func (s *ConfigSchema) ValidateConfig(config map[string]any) []error {
	if s == nil {
		return nil
	}
	var errs []error

	missing := make([]string, 0)
	for _, key := range s.Required {
		if _, ok := config[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		errs = append(errs, fmt.Errorf("required configuration field missing: %s", key))
	}

	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, ok := s.Properties[key]
		if !ok || config[key] == nil {
			continue
		}
		if err := checkPropertyType(key, prop, config[key]); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func checkPropertyType(key string, prop *Property, value any) error {
	ok := true
	switch prop.Type {
	case "string":
		s, isStr := value.(string)
		ok = isStr
		if ok && len(prop.Enum) > 0 {
			ok = false
			for _, allowed := range prop.Enum {
				if s == allowed {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("field %s: value %q not in %v", key, s, prop.Enum)
			}
		}
	case "number":
		switch value.(type) {
		case int, int64, float64:
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]any)
	case "object":
		_, ok = value.(map[string]any)
	}
	if !ok {
		return fmt.Errorf("field %s: expected %s, got %T", key, prop.Type, value)
	}
	return nil
}
