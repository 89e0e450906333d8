package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestOperations(t *testing.T) {
	v := newValidator(t)
	assert.Equal(t, []string{
		"cycleProposals.accept",
		"intents.cancel",
		"intents.submit",
		"matching.run",
		"settlement.beginExecution",
		"settlement.complete",
		"settlement.depositConfirmed",
		"settlement.expireDepositWindow",
		"settlement.fail",
		"settlement.start",
	}, v.Operations())
	assert.True(t, v.Has(Envelope))
}

func TestValidateJSON(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name  string
		op    string
		doc   string
		field string
	}{
		{"accept ok", "cycleProposals.accept", `{"proposal_id":"p1"}`, ""},
		{"accept missing id", "cycleProposals.accept", `{}`, "/"},
		{"accept extra field", "cycleProposals.accept", `{"proposal_id":"p1","x":1}`, "/"},
		{"deposit ok", "settlement.depositConfirmed", `{"cycle_id":"c","intent_id":"i","deposit_ref":"d"}`, ""},
		{"deposit empty ref", "settlement.depositConfirmed", `{"cycle_id":"c","intent_id":"i","deposit_ref":""}`, "/deposit_ref"},
		{"fail ok", "settlement.fail", `{"cycle_id":"c","reason_code":"partner_dispute"}`, ""},
		{"fail bad reason", "settlement.fail", `{"cycle_id":"c","reason_code":"Bad Reason"}`, "/reason_code"},
		{"run defaults", "matching.run", `{}`, ""},
		{"run too long", "matching.run", `{"bounds":{"max_cycle_length":9}}`, "/bounds/max_cycle_length"},
		{"submit ok", "intents.submit", `{"give":[{"id":"a","class":"card","value":"10.5"}],"want":{"classes":["card"]}}`, ""},
		{"submit numeric value", "intents.submit", `{"give":[{"id":"a","class":"card","value":10}],"want":{"asset_ids":["b"],"min_value":"1"}}`, ""},
		{"submit empty want", "intents.submit", `{"give":[{"id":"a","class":"card","value":"1"}],"want":{}}`, "/want"},
		{"submit negative", "intents.submit", `{"give":[{"id":"a","class":"card","value":"-1"}],"want":{"classes":["card"]}}`, "/give/0/value"},
		{"envelope ok", Envelope, `{"operation":"settlement.start","actor":"a","occurred_at":"2026-01-01T00:00:00Z","payload":{}}`, ""},
		{"envelope bad time", Envelope, `{"operation":"settlement.start","actor":"a","occurred_at":"yesterday","payload":{}}`, "/occurred_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateJSON(tt.op, []byte(tt.doc))
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
			assert.Equal(t, swaperr.ReasonInvalidPayload, swaperr.ReasonOf(err))
			var se *swaperr.Error
			require.ErrorAs(t, err, &se)
			assert.Contains(t, se.Details["field"], tt.field)
		})
	}
}

func TestValidate_UnknownOperation(t *testing.T) {
	err := newValidator(t).Validate("settlement.teleport", map[string]any{})
	assert.Equal(t, swaperr.ReasonUnknownOperation, swaperr.ReasonOf(err))
}

func TestDecodeJSON_Malformed(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"a":`))
	assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
}
