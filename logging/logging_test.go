package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
)

func TestNew(t *testing.T) {
	t.Run("logfmt filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "logfmt", "warn")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		level.Info(logger).Log("msg", "dropped")
		level.Warn(logger).Log("msg", "kept")
		out := buf.String()
		if strings.Contains(out, "dropped") || !strings.Contains(out, "msg=kept") {
			t.Fatalf("unexpected output %q", out)
		}
		if !strings.Contains(out, "ts=") || !strings.Contains(out, "caller=") {
			t.Fatalf("expected ts and caller, got %q", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "json", "debug")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		level.Debug(logger).Log("msg", "hello", "rows", 3)
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("expected a json line, got %q: %v", buf.String(), err)
		}
		if line["msg"] != "hello" || line["level"] != "debug" {
			t.Fatalf("unexpected line %v", line)
		}
	})

	t.Run("bad options", func(t *testing.T) {
		if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
			t.Fatalf("expected error for unknown format")
		}
		if _, err := New(&bytes.Buffer{}, "logfmt", "loud"); err == nil {
			t.Fatalf("expected error for unknown level")
		}
	})
}
