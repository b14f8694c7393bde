// Package docfields validates document field values against the field
// configuration of a document template before a document row is created.
package docfields

import (
	"fmt"
	"strings"
	"time"
)

// FieldType is the closed set of supported template field kinds.
type FieldType string

const (
	ShortText FieldType = "shortText"
	LongText  FieldType = "longText"
	DateTime  FieldType = "dateTime"
	Select    FieldType = "select"
	File      FieldType = "file"
	Image     FieldType = "image"
	CheckBox  FieldType = "checkBox"
)

// Valid reports whether t is one of the supported field kinds.
func (t FieldType) Valid() bool {
	switch t {
	case ShortText, LongText, DateTime, Select, File, Image, CheckBox:
		return true
	}
	return false
}

// FieldConfig is one field descriptor inside a template's field configuration.
type FieldConfig struct {
	Key        string    `json:"key"`
	Label      string    `json:"label"`
	FieldType  FieldType `json:"field_type"`
	IsRequired bool      `json:"is_required"`
	MinChar    int       `json:"min_char,omitempty"`
	MaxChar    int       `json:"max_char,omitempty"`
	Options    []string  `json:"options,omitempty"`
}

// FieldValue is one submitted value keyed to a template field.
type FieldValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Field is a validated, formatted field ready to be stored on a document.
type Field struct {
	Key   string      `json:"key"`
	Label string      `json:"label"`
	Type  FieldType   `json:"type"`
	Value interface{} `json:"value"`
}

// ValidationError collects every field problem found in one pass so the
// caller can report them all at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Accepted layouts for dateTime values.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseableDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Validate checks submitted values against the template's field configuration
// and returns the formatted fields, or a ValidationError listing every
// problem. Values without a matching config entry are ignored.
func Validate(configs []FieldConfig, values []FieldValue) ([]Field, error) {
	byKey := make(map[string]interface{}, len(values))
	present := make(map[string]bool, len(values))
	for _, v := range values {
		byKey[v.Key] = v.Value
		present[v.Key] = true
	}

	var problems []string
	var fields []Field

	for _, config := range configs {
		value, found := byKey[config.Key]

		empty := !found || value == nil || value == ""
		if config.IsRequired && empty {
			problems = append(problems, fmt.Sprintf("field %q is required", config.Label))
			continue
		}
		if !present[config.Key] {
			continue
		}

		switch config.FieldType {
		case ShortText, LongText:
			s, ok := value.(string)
			if !ok {
				problems = append(problems, fmt.Sprintf("field %q should be a string", config.Label))
				continue
			}
			if len(s) < config.MinChar || (config.MaxChar > 0 && len(s) > config.MaxChar) {
				problems = append(problems, fmt.Sprintf("field %q must be between %d and %d characters",
					config.Label, config.MinChar, config.MaxChar))
				continue
			}
			fields = append(fields, Field{Key: config.Key, Label: config.Label, Type: config.FieldType, Value: s})

		case DateTime:
			s, ok := value.(string)
			if !ok || !parseableDateTime(s) {
				problems = append(problems, fmt.Sprintf("field %q must be a valid date and time", config.Label))
				continue
			}
			fields = append(fields, Field{Key: config.Key, Label: config.Label, Type: config.FieldType, Value: s})

		case Select:
			s, ok := value.(string)
			if !ok || !contains(config.Options, s) {
				problems = append(problems, fmt.Sprintf("field %q must be one of: %s",
					config.Label, strings.Join(config.Options, ", ")))
				continue
			}
			fields = append(fields, Field{Key: config.Key, Label: config.Label, Type: config.FieldType, Value: s})

		case File, Image:
			s, ok := value.(string)
			if !ok {
				problems = append(problems, fmt.Sprintf("field %q should be a valid file or image identifier", config.Label))
				continue
			}
			fields = append(fields, Field{Key: config.Key, Label: config.Label, Type: config.FieldType, Value: s})

		case CheckBox:
			b, ok := value.(bool)
			if !ok {
				problems = append(problems, fmt.Sprintf("field %q should be a boolean", config.Label))
				continue
			}
			fields = append(fields, Field{Key: config.Key, Label: config.Label, Type: config.FieldType, Value: b})

		default:
			problems = append(problems, fmt.Sprintf("field %q has an unknown field type %q", config.Label, config.FieldType))
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return fields, nil
}

func contains(options []string, value string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
