package temporal

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/log"
)

func TestTemporalAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewTemporalAdapter(zerolog.New(&buf))

	adapter.Warn("activity slow", "ActivityType", "RunOnceActivity", "Attempt", 2, "dangling")
	out := buf.String()
	assert.Contains(t, out, `"component":"temporal-sdk"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"ActivityType":"RunOnceActivity"`)
	assert.Contains(t, out, `"Attempt":2`)
	assert.Contains(t, out, `"dangling":"MISSING_VALUE"`)
}

func TestTemporalAdapterWith(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewTemporalAdapter(zerolog.New(&buf))

	scoped := adapter.(interface {
		With(keyvals ...interface{}) log.Logger
	}).With("WorkflowID", DrainWorkflowID, 7, "seven")
	scoped.Info("drain started")

	out := buf.String()
	assert.Contains(t, out, `"WorkflowID":"linkdoc-import-drain"`)
	assert.Contains(t, out, `"7":"seven"`)
	assert.Contains(t, out, `"message":"drain started"`)
}
