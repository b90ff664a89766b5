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

func TestFromContextCarriesDocument(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	ctx := WithDocument(context.Background(), "idx", "doc", "42")
	FromContext(ctx).Debug("parsed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "parsed", line["msg"])
	assert.Equal(t, "idx", line["index"])
	assert.Equal(t, "doc", line["type"])
	assert.Equal(t, "42", line["doc_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything"))
}

func TestWithAttrsAccumulates(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	base := WithAttrs(context.Background(), "request_id", "r-1")
	ctx := WithDocument(base, "idx", "doc", "7")
	FromContext(ctx).Info("indexed")
	FromContext(base).Info("served")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "r-1", first["request_id"])
	assert.Equal(t, "7", first["doc_id"])
	assert.Equal(t, "r-1", second["request_id"])
	assert.NotContains(t, second, "doc_id")
}
