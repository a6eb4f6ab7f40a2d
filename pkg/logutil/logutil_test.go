package logutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(&buf, "debug", FormatJSON)
		if err != nil {
			t.Fatal(err)
		}
		log.Debug("hello")
		if !strings.Contains(buf.String(), `"msg":"hello"`) {
			t.Errorf("output = %q, want JSON msg", buf.String())
		}
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(&buf, "warn", FormatText)
		if err != nil {
			t.Fatal(err)
		}
		log.Info("hidden")
		if buf.Len() != 0 {
			t.Errorf("info logged at warn level: %q", buf.String())
		}
	})

	t.Run("bad level", func(t *testing.T) {
		if _, err := New(&bytes.Buffer{}, "loud", FormatText); err == nil {
			t.Error("expected error for unknown level")
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestDump(t *testing.T) {
	t.Run("one entry per line", func(t *testing.T) {
		var buf bytes.Buffer
		log, _ := New(&buf, "trace", FormatText)
		Dump(log, logrus.TraceLevel, "REQ", map[string]int{"a": 1, "b": 2})

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		// {, "a": 1, "b": 2, }
		if len(lines) != 4 {
			t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
		}
		for _, l := range lines {
			if !strings.Contains(l, "dump=REQ") {
				t.Errorf("line missing tag: %q", l)
			}
		}
	})

	t.Run("disabled level writes nothing", func(t *testing.T) {
		var buf bytes.Buffer
		log, _ := New(&buf, "info", FormatText)
		Dump(log, logrus.TraceLevel, "REQ", map[string]int{"a": 1})
		if buf.Len() != 0 {
			t.Errorf("unexpected output: %q", buf.String())
		}
	})

	t.Run("raw non-json verbatim", func(t *testing.T) {
		var buf bytes.Buffer
		log, _ := New(&buf, "trace", FormatText)
		DumpRaw(log, logrus.TraceLevel, "REP", []byte("bad gateway"))
		if !strings.Contains(buf.String(), "bad gateway") {
			t.Errorf("output = %q", buf.String())
		}
	})
}
