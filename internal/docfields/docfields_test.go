package docfields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchConfig() []FieldConfig {
	return []FieldConfig{
		{Key: "batch", Label: "Batch number", FieldType: ShortText, IsRequired: true, MinChar: 3, MaxChar: 10},
		{Key: "notes", Label: "Notes", FieldType: LongText},
		{Key: "produced", Label: "Production date", FieldType: DateTime, IsRequired: true},
		{Key: "grade", Label: "Grade", FieldType: Select, Options: []string{"A", "B", "C"}},
		{Key: "photo", Label: "Photo", FieldType: Image},
		{Key: "inspected", Label: "Inspected", FieldType: CheckBox},
	}
}

func TestValidateAcceptsWellFormedValues(t *testing.T) {
	fields, err := Validate(batchConfig(), []FieldValue{
		{Key: "batch", Value: "B-1024"},
		{Key: "produced", Value: "2026-02-14"},
		{Key: "grade", Value: "A"},
		{Key: "photo", Value: "uploads/photo-1.jpg"},
		{Key: "inspected", Value: true},
	})
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, "batch", fields[0].Key)
	assert.Equal(t, "Batch number", fields[0].Label)
	assert.Equal(t, ShortText, fields[0].Type)
	assert.Equal(t, "B-1024", fields[0].Value)
	assert.Equal(t, true, fields[4].Value)
}

func TestValidateReportsEveryProblemAtOnce(t *testing.T) {
	_, err := Validate(batchConfig(), []FieldValue{
		{Key: "batch", Value: "B"},            // below MinChar
		{Key: "produced", Value: "yesterday"}, // not a date
		{Key: "grade", Value: "D"},            // outside option set
		{Key: "inspected", Value: "yes"},      // not a bool
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 4)
}

func TestValidateRequiredFields(t *testing.T) {
	_, err := Validate(batchConfig(), nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Problems, `field "Batch number" is required`)
	assert.Contains(t, verr.Problems, `field "Production date" is required`)

	// Empty string counts as absent for a required field
	_, err = Validate(batchConfig(), []FieldValue{
		{Key: "batch", Value: ""},
		{Key: "produced", Value: "2026-02-14"},
	})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Problems, `field "Batch number" is required`)
}

func TestValidateOptionalFieldsMayBeOmitted(t *testing.T) {
	fields, err := Validate(batchConfig(), []FieldValue{
		{Key: "batch", Value: "B-1024"},
		{Key: "produced", Value: "2026-02-14T08:30:00"},
	})
	require.NoError(t, err)
	assert.Len(t, fields, 2)
}

func TestValidateCharBounds(t *testing.T) {
	configs := []FieldConfig{
		{Key: "code", Label: "Code", FieldType: ShortText, MinChar: 2, MaxChar: 4},
	}

	_, err := Validate(configs, []FieldValue{{Key: "code", Value: "toolong"}})
	assert.Error(t, err)

	fields, err := Validate(configs, []FieldValue{{Key: "code", Value: "ok"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", fields[0].Value)
}

func TestValidateDateTimeLayouts(t *testing.T) {
	configs := []FieldConfig{{Key: "at", Label: "At", FieldType: DateTime}}

	for _, good := range []string{
		"2026-02-14T08:30:00Z",
		"2026-02-14T08:30:00",
		"2026-02-14 08:30:00",
		"2026-02-14",
	} {
		_, err := Validate(configs, []FieldValue{{Key: "at", Value: good}})
		assert.NoErrorf(t, err, "layout %q", good)
	}

	_, err := Validate(configs, []FieldValue{{Key: "at", Value: "14/02/2026"}})
	assert.Error(t, err)
}

func TestValidateIgnoresUnknownKeys(t *testing.T) {
	fields, err := Validate(batchConfig(), []FieldValue{
		{Key: "batch", Value: "B-1024"},
		{Key: "produced", Value: "2026-02-14"},
		{Key: "stray", Value: "ignored"},
	})
	require.NoError(t, err)
	for _, field := range fields {
		assert.NotEqual(t, "stray", field.Key)
	}
}

func TestValidateUnknownFieldType(t *testing.T) {
	configs := []FieldConfig{{Key: "x", Label: "X", FieldType: "richText"}}

	_, err := Validate(configs, []FieldValue{{Key: "x", Value: "v"}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Problems[0], "unknown field type")
}

func TestFieldTypeValid(t *testing.T) {
	for _, ft := range []FieldType{ShortText, LongText, DateTime, Select, File, Image, CheckBox} {
		assert.True(t, ft.Valid())
	}
	assert.False(t, FieldType("richText").Valid())
	assert.False(t, FieldType("").Valid())
}
