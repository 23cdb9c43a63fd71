package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("tenant_id", "tenant_42").Info("checkout finalized")

	entry := logLine(t, &buf)
	assert.Equal(t, "checkout finalized", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "tenant_42", entry["tenant_id"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("suppressed")
	assert.Empty(t, buf.Bytes())

	logger.Warn("emitted")
	assert.NotEmpty(t, buf.Bytes())
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(assert.AnError).Error("verification failed")

	entry := logLine(t, &buf)
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestLoggerWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req_1")
	ctx = WithTenantID(ctx, "tenant_42")

	FromContext(ctx).Info("lookup resolved")

	entry := logLine(t, &buf)
	assert.Equal(t, "req_1", entry["request_id"])
	assert.Equal(t, "tenant_42", entry["tenant_id"])
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetTenantID(ctx))

	ctx = WithRequestID(ctx, "req_2")
	ctx = WithTenantID(ctx, "tenant_7")
	assert.Equal(t, "req_2", GetRequestID(ctx))
	assert.Equal(t, "tenant_7", GetTenantID(ctx))
}
