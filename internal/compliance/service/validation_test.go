package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zynthio/zynthio/internal/compliance/entity"
)

func mkField(fieldType string, required bool, rules, options, showIf string) *entity.TaskField {
	f := &entity.TaskField{
		ID:         "field-1",
		TaskID:     "task-1",
		Label:      "Test Field",
		FieldType:  fieldType,
		IsRequired: required,
	}
	if rules != "" {
		f.ValidationRules = json.RawMessage(rules)
	}
	if options != "" {
		f.Options = json.RawMessage(options)
	}
	if showIf != "" {
		f.ShowIf = json.RawMessage(showIf)
	}
	return f
}

func TestCoerceValueNumber(t *testing.T) {
	f := mkField(entity.FieldTypeNumber, true, "", "", "")

	normalized, observed, numeric, msg, err := coerceValue(f, json.RawMessage(`4.5`))
	assert.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "4.5", observed)
	assert.NotNil(t, numeric)
	assert.Equal(t, 4.5, *numeric)
	assert.JSONEq(t, `4.5`, string(normalized))

	// Numbers submitted as JSON strings still coerce.
	_, observed, numeric, msg, err = coerceValue(f, json.RawMessage(`"-2"`))
	assert.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "-2", observed)
	assert.Equal(t, -2.0, *numeric)

	_, _, _, msg, err = coerceValue(f, json.RawMessage(`"warm"`))
	assert.NoError(t, err)
	assert.Equal(t, "expected a decimal number", msg)
}

func TestCoerceValueYesNo(t *testing.T) {
	f := mkField(entity.FieldTypeYesNo, true, "", "", "")

	_, observed, _, msg, err := coerceValue(f, json.RawMessage(`"yes"`))
	assert.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "yes", observed)

	_, _, _, msg, _ = coerceValue(f, json.RawMessage(`"no"`))
	assert.Empty(t, msg)

	_, _, _, msg, _ = coerceValue(f, json.RawMessage(`"maybe"`))
	assert.NotEmpty(t, msg)

	_, _, _, msg, _ = coerceValue(f, json.RawMessage(`true`))
	assert.NotEmpty(t, msg, "booleans are not yes/no answers")
}

func TestCoerceValueDropdown(t *testing.T) {
	f := mkField(entity.FieldTypeDropdown, true, "", `["pass","fail","n/a"]`, "")

	_, observed, _, msg, err := coerceValue(f, json.RawMessage(`"fail"`))
	assert.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "fail", observed)

	_, _, _, msg, err = coerceValue(f, json.RawMessage(`"broken"`))
	assert.NoError(t, err)
	assert.Equal(t, "value is not one of the configured options", msg)
}

func TestCoerceValueDropdownWithoutOptionsIsFatal(t *testing.T) {
	f := mkField(entity.FieldTypeDropdown, true, "", "", "")

	_, _, _, _, err := coerceValue(f, json.RawMessage(`"anything"`))
	assert.ErrorIs(t, err, ErrFatal)
}

func TestCoerceValuePhoto(t *testing.T) {
	f := mkField(entity.FieldTypePhoto, false, "", "", "")

	_, _, _, msg, err := coerceValue(f, json.RawMessage(`"https://cdn.zynthio.io/photos/abc.jpg"`))
	assert.NoError(t, err)
	assert.Empty(t, msg)

	_, _, _, msg, _ = coerceValue(f, json.RawMessage(`"not a url"`))
	assert.NotEmpty(t, msg)
}

func TestCoerceValueText(t *testing.T) {
	f := mkField(entity.FieldTypeText, true, "", "", "")

	_, observed, _, msg, err := coerceValue(f, json.RawMessage(`"all clear"`))
	assert.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "all clear", observed)

	_, _, _, msg, _ = coerceValue(f, json.RawMessage(`""`))
	assert.Equal(t, "required field must not be empty", msg)

	// Optional text may be empty.
	opt := mkField(entity.FieldTypeText, false, "", "", "")
	_, _, _, msg, _ = coerceValue(opt, json.RawMessage(`""`))
	assert.Empty(t, msg)
}

func TestCoerceValueRepeatingGroup(t *testing.T) {
	f := mkField(entity.FieldTypeRepeatingGroup, false, "", "", "")

	raw := json.RawMessage(`[{"fridge":"F1","temp":3.2},{"fridge":"F2","temp":4.1}]`)
	normalized, _, _, msg, err := coerceValue(f, raw)
	assert.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, raw, normalized)

	_, _, _, msg, _ = coerceValue(f, json.RawMessage(`{"fridge":"F1"}`))
	assert.Equal(t, "expected an array of group rows", msg)
}

func TestCoerceValueUnknownTypeIsFatal(t *testing.T) {
	f := mkField("hologram", false, "", "", "")
	_, _, _, _, err := coerceValue(f, json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, ErrFatal)
}

func TestFieldVisible(t *testing.T) {
	plain := mkField(entity.FieldTypeText, false, "", "", "")
	visible, err := fieldVisible(plain, nil)
	assert.NoError(t, err)
	assert.True(t, visible, "fields without a guard are always visible")

	guarded := mkField(entity.FieldTypeText, false, "", "", `{"field_id":"f-gate","value":"yes"}`)

	visible, err = fieldVisible(guarded, map[string]string{})
	assert.NoError(t, err)
	assert.False(t, visible, "unanswered gate hides the field")

	visible, _ = fieldVisible(guarded, map[string]string{"f-gate": "no"})
	assert.False(t, visible)

	visible, _ = fieldVisible(guarded, map[string]string{"f-gate": "yes"})
	assert.True(t, visible)
}

func TestApplyRulesBounds(t *testing.T) {
	min, max := 2.0, 8.0
	rules := &entity.ValidationRules{Min: &min, Max: &max}

	five := 5.0
	assert.Empty(t, applyRules(rules, "5", &five))

	low := 1.0
	assert.NotEmpty(t, applyRules(rules, "1", &low))

	high := 9.5
	assert.NotEmpty(t, applyRules(rules, "9.5", &high))

	assert.Empty(t, applyRules(nil, "anything", nil))
}

func TestApplyRulesDefersToDefectPromotion(t *testing.T) {
	// Bounds paired with out_of_range promotion accept the answer; the
	// violation becomes a defect, not a validation failure.
	min, max := 2.0, 8.0
	rules := &entity.ValidationRules{Min: &min, Max: &max, CreateDefectIf: entity.DefectIfOutOfRange}

	high := 12.0
	assert.Empty(t, applyRules(rules, "12", &high))
}

func TestShouldPromoteOutOfRange(t *testing.T) {
	min, max := 2.0, 8.0
	rules := &entity.ValidationRules{Min: &min, Max: &max, CreateDefectIf: entity.DefectIfOutOfRange}

	high := 12.0
	assert.True(t, shouldPromote(rules, "12", &high))

	low := 1.5
	assert.True(t, shouldPromote(rules, "1.5", &low))

	ok := 5.0
	assert.False(t, shouldPromote(rules, "5", &ok))

	assert.False(t, shouldPromote(rules, "12", nil), "non-numeric answers never trip range rules")
	assert.False(t, shouldPromote(nil, "12", &high))
}

func TestShouldPromoteEquals(t *testing.T) {
	no := "no"
	rules := &entity.ValidationRules{Equals: &no, CreateDefectIf: entity.DefectIfEquals}

	assert.True(t, shouldPromote(rules, "no", nil))
	assert.False(t, shouldPromote(rules, "yes", nil))

	// equals predicate without a target never fires
	assert.False(t, shouldPromote(&entity.ValidationRules{CreateDefectIf: entity.DefectIfEquals}, "no", nil))
}

func TestShouldPromoteIgnoresBareBounds(t *testing.T) {
	min := 2.0
	rules := &entity.ValidationRules{Min: &min}
	low := 1.0
	assert.False(t, shouldPromote(rules, "1", &low), "bounds without create_defect_if reject, not promote")
}

func TestValidationErrorAccumulates(t *testing.T) {
	ve := NewValidationError()
	assert.True(t, ve.Empty())

	ve.Add("temperature", "expected a decimal number")
	ve.Add("cleaned", `expected "yes" or "no"`)
	assert.False(t, ve.Empty())
	assert.Len(t, ve.Fields, 2)
	assert.Contains(t, ve.Error(), "temperature")
}
