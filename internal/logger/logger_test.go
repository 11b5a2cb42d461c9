package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := New(&buf, "json", "info")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("trash entry cleared", "entry", "e-1", "records", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &payload))
	require.Equal(t, "trash entry cleared", payload["msg"])
	require.Equal(t, "e-1", payload["entry"])
	require.EqualValues(t, 3, payload["records"])
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := New(&buf, "pretty", "warn")
	require.NoError(t, err)

	l.Info("skipped")
	l.With("tenant", "t-1").WithGroup("sweep").Warn("retrying", "attempts", 2)

	out := buf.String()
	require.NotContains(t, out, "skipped")
	require.Contains(t, out, "retrying")
	require.Contains(t, out, "tenant")
	require.Contains(t, out, "sweep.attempts")
}

func TestPrettyHandlerDefaultsToInfo(t *testing.T) {
	t.Parallel()

	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	require.False(t, h.Enabled(t.Context(), slog.LevelDebug))
	require.True(t, h.Enabled(t.Context(), slog.LevelInfo))
}

func TestPrettyHandlerHoistsScope(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(NewPrettyHandler(&buf, nil))
	l.With("tenant", "t-1").Info("trash entry cleared", "records", 3, "entry", "e-1", "took", 1500*time.Microsecond)

	out := buf.String()
	tenantAt := strings.Index(out, "[tenant t-1]")
	entryAt := strings.Index(out, "[entry e-1]")
	msgAt := strings.Index(out, "trash entry cleared")
	require.GreaterOrEqual(t, tenantAt, 0, out)
	require.Greater(t, entryAt, tenantAt, out)
	require.Greater(t, msgAt, entryAt, out)
	require.Contains(t, out, "=3")
	require.Contains(t, out, "=2ms")
	require.NotContains(t, out, "entry\033[0m=")
}
