package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_RejectsUnknownValues(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	assert.Error(t, InitWriter(&bytes.Buffer{}, "xml", "INFO"))
	assert.Error(t, InitWriter(&bytes.Buffer{}, "json", "LOUD"))
	assert.NoError(t, InitWriter(&bytes.Buffer{}, "text", "debug"))
}

func TestFromContext_AddsChannelAndOrigin(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	require.NoError(t, InitWriter(&buf, "json", "INFO"))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithChannel(ctx, "tab-7", "https://app.example")
	Info(ctx, "request accepted", "kind", "connect")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "tab-7", rec["channel_id"])
	assert.Equal(t, "https://app.example", rec["origin"])
	assert.Equal(t, "connect", rec["kind"])
}
