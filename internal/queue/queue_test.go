package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

// TestEnvelopeRoundTrip exercises the wire-format invariant from SPEC_FULL
// §8: the descriptor's own job_id field must reach the other side intact,
// never shadowed or renamed by the envelope's own id.
func TestEnvelopeRoundTrip(t *testing.T) {
	d := model.Descriptor{
		JobID:    "11111111-1111-1111-1111-111111111111",
		Playbook: "hello.yml",
		ExtraVars: map[string]any{
			"name": "Claude",
		},
		Inventory: &model.Inventory{Type: model.InventoryLiteral, Literal: "localhost"},
		SourceConfig: &model.Source{
			Type:   model.SourceLocal,
			Target: model.TargetPlaybook,
			Path:   "hello.yml",
		},
		Options: &model.Options{Verbosity: 2},
	}

	env := envelope{EnvelopeID: d.JobID, Payload: d}
	b, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded envelope
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, d, decoded.Payload)
	assert.Equal(t, d.JobID, decoded.EnvelopeID)
	assert.Contains(t, string(b), `"job_id":"11111111-1111-1111-1111-111111111111"`)
}
