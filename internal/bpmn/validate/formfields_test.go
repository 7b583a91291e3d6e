package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/validate"
)

func sampleFormFields() map[string]any {
	return map[string]any{
		"decision": map[string]any{
			"type":     "string",
			"required": true,
			"enum":     []any{"approved", "rejected"},
		},
		"comments": map[string]any{
			"type": "string",
		},
	}
}

func TestValidateFormSubmission_Accepts(t *testing.T) {
	err := validate.ValidateFormSubmission(sampleFormFields(), map[string]any{
		"decision": "approved",
		"comments": "looks good",
	})
	assert.NoError(t, err)
}

func TestValidateFormSubmission_RejectsMissingRequired(t *testing.T) {
	err := validate.ValidateFormSubmission(sampleFormFields(), map[string]any{
		"comments": "no decision given",
	})
	assert.Error(t, err)
}

func TestValidateFormSubmission_RejectsInvalidEnum(t *testing.T) {
	err := validate.ValidateFormSubmission(sampleFormFields(), map[string]any{
		"decision": "maybe",
	})
	assert.Error(t, err)
}

func TestValidateFormSubmission_NoFormFieldsAlwaysPasses(t *testing.T) {
	assert.NoError(t, validate.ValidateFormSubmission(nil, map[string]any{"anything": true}))
}

func TestValidateJSON_RejectsTypeMismatch(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"decision":{"type":"string"}},"required":["decision"]}`)
	payload := []byte(`{"decision":123}`)
	assert.Error(t, validate.ValidateJSON(payload, schema))
}

func TestValidateJSON_AcceptsMatchingPayload(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"decision":{"type":"string"}},"required":["decision"]}`)
	payload := []byte(`{"decision":"approved"}`)
	require.NoError(t, validate.ValidateJSON(payload, schema))
}
