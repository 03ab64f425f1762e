package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgefleet/fleetops/internal/domain/healthrun"
)

func TestJSONHandler_DecodesRunRequested(t *testing.T) {
	var got *RunRequested
	h := JSONHandler(func(_ context.Context, key []byte, msg *RunRequested) error {
		assert.Equal(t, "scheduler", string(key))
		got = msg
		return nil
	})

	payload := []byte(`{"trigger_kind":"scheduled","source":"scheduler","requested_at":1700000000000}`)
	require.NoError(t, h(context.Background(), []byte("scheduler"), payload))

	require.NotNil(t, got)
	assert.Equal(t, healthrun.TriggerScheduled, got.TriggerKind)
	assert.Equal(t, "scheduler", got.Source)
	assert.Equal(t, int64(1700000000000), got.RequestedAt)
}

func TestJSONHandler_MalformedPayload(t *testing.T) {
	h := JSONHandler(func(context.Context, []byte, *RunRequested) error {
		t.Fatal("handler must not run on a decode failure")
		return nil
	})
	assert.Error(t, h(context.Background(), nil, []byte("{not json")))
}
