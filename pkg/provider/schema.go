package provider

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// validate is the singleton validator used for adapter config structs.
var validate = validator.New()

// Field declares one key of a backend configuration blob.
type Field struct {
	Name string

	// Required fields must be present and non-empty.
	Required bool

	// Sensitive fields hold credentials and are sealed by the credential
	// cipher before the config is persisted.
	Sensitive bool

	// Credential fields are written by the auth flow and stripped when the
	// provider is disconnected.
	Credential bool

	// Default is applied when the key is absent. nil means no default.
	Default any
}

// Schema is the declared configuration shape of a backend type.
type Schema struct {
	Type   string
	Fields []Field
}

// SensitiveFields returns the names of all sensitive fields.
func (s Schema) SensitiveFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Sensitive {
			names = append(names, f.Name)
		}
	}
	return names
}

// CredentialFields returns the names of fields produced by the auth flow.
func (s Schema) CredentialFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Credential {
			names = append(names, f.Name)
		}
	}
	return names
}

// Field returns the declaration for name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Normalize returns a copy of config restricted to declared fields, with
// defaults filled in for absent keys. The input is not modified.
func (s Schema) Normalize(config map[string]any) map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		if v, ok := config[f.Name]; ok && v != nil {
			out[f.Name] = v
			continue
		}
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Decode normalizes config, checks required fields, decodes it into target (a
// pointer to a struct with mapstructure tags) and runs validate tags on the
// result. Any failure is a *ConfigurationError.
func (s Schema) Decode(config map[string]any, target any) error {
	normalized := s.Normalize(config)

	for _, f := range s.Fields {
		if f.Required && isEmpty(normalized[f.Name]) {
			return &ConfigurationError{Type: s.Type, Field: f.Name, Message: "field is required"}
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create config decoder: %w", err)
	}

	if err := decoder.Decode(normalized); err != nil {
		return &ConfigurationError{Type: s.Type, Message: err.Error()}
	}

	if err := validate.Struct(target); err != nil {
		return s.formatValidationError(err)
	}

	return nil
}

// formatValidationError converts the first validator failure into a
// ConfigurationError naming the offending field.
func (s Schema) formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return &ConfigurationError{
			Type:    s.Type,
			Field:   strings.ToLower(e.Field()),
			Message: fmt.Sprintf("validation failed on '%s' tag", e.Tag()),
		}
	}
	return &ConfigurationError{Type: s.Type, Message: err.Error()}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice:
		return rv.Len() == 0
	}
	return false
}

// Merge returns a copy of base overlaid with updates. nil values in updates
// delete the key.
func Merge(base, updates map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// String reads a string value from a config map.
func String(config map[string]any, key string) string {
	if v, ok := config[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}
