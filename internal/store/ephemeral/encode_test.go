package ephemeral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	started := time.Now().Add(-time.Minute).UTC().Round(time.Nanosecond)
	finished := time.Now().UTC().Round(time.Nanosecond)

	original := &model.Job{
		ID:           "11111111-1111-1111-1111-111111111111",
		Status:       model.StatusSuccessful,
		Playbook:     "hello.yml",
		ExtraVars:    map[string]any{"name": "Claude"},
		Inventory:    &model.Inventory{Type: model.InventoryLiteral, Literal: "localhost"},
		Options:      &model.Options{Verbosity: 1},
		CreatedAt:    started.Add(-time.Second),
		StartedAt:    &started,
		FinishedAt:   &finished,
		Result:       &model.Result{RC: 0, Stdout: "Hello, Claude!", Stats: map[string]any{"ok": float64(1)}},
		SourceType:   model.SourceLocal,
		SourceTarget: model.TargetPlaybook,
	}

	fields, err := encode(original)
	require.NoError(t, err)

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}

	decoded, err := decode(raw)
	require.NoError(t, err)

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Playbook, decoded.Playbook)
	assert.Equal(t, original.ExtraVars, decoded.ExtraVars)
	assert.Equal(t, original.Inventory, decoded.Inventory)
	assert.Equal(t, original.Options, decoded.Options)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, original.StartedAt.Equal(*decoded.StartedAt))
	assert.True(t, original.FinishedAt.Equal(*decoded.FinishedAt))
	assert.Equal(t, original.Result, decoded.Result)
}

func TestEncode_OmitsEmptyOptionalFields(t *testing.T) {
	j := &model.Job{
		ID:           "x",
		Status:       model.StatusPending,
		Playbook:     "a.yml",
		CreatedAt:    time.Now(),
		SourceType:   model.SourceLocal,
		SourceTarget: model.TargetPlaybook,
	}
	fields, err := encode(j)
	require.NoError(t, err)

	_, hasStarted := fields["started_at"]
	_, hasFinished := fields["finished_at"]
	_, hasResult := fields["result"]
	assert.False(t, hasStarted)
	assert.False(t, hasFinished)
	assert.False(t, hasResult)
}
