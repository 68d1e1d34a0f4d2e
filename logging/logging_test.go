package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	gokitlog "github.com/go-kit/kit/log"
	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
	"github.com/moffa90/go-snor/flash"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/exp/slog"
)

// emit logs one message per level through l
func emit(l flash.Logger) {
	l.Debug("polling", "sector", 3)
	l.Info("started", "id", "20BA18")
	l.Error("erase failed", "error", errors.New("flag 0x20"), "offset", 4096)
}

// jsonLines decodes one JSON object per line
func jsonLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		m := make(map[string]interface{})
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	emit(Zap(zap.New(core).Sugar()))

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	levels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != levels[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, levels[i])
		}
	}
	if got := entries[0].ContextMap()["sector"]; got != int64(3) {
		t.Errorf("sector = %v, want 3", got)
	}
	if got := entries[2].ContextMap()["offset"]; got != int64(4096) {
		t.Errorf("offset = %v, want 4096", got)
	}
}

func TestSlog(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	emit(Slog(l))

	lines := jsonLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	var got []string
	for _, m := range lines {
		got = append(got, m["level"].(string)+" "+m["msg"].(string))
	}
	want := []string{"DEBUG polling", "INFO started", "ERROR erase failed"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if lines[1]["id"] != "20BA18" {
		t.Errorf("id = %v, want 20BA18", lines[1]["id"])
	}
}

func TestLogr(t *testing.T) {
	var got []string
	l := funcr.New(func(prefix, args string) {
		got = append(got, args)
	}, funcr.Options{Verbosity: 1})
	emit(Logr(l))

	if len(got) != 3 {
		t.Fatalf("got %d records, want 3: %v", len(got), got)
	}
	if !strings.Contains(got[0], `"level"=1`) || !strings.Contains(got[0], `"sector"=3`) {
		t.Errorf("debug record = %s", got[0])
	}
	if !strings.Contains(got[2], `"error"="flag 0x20"`) || !strings.Contains(got[2], `"offset"=4096`) {
		t.Errorf("error record = %s", got[2])
	}
	if strings.Count(got[2], `"error"`) != 1 {
		t.Errorf("error key repeated: %s", got[2])
	}
}

func TestLogrus(t *testing.T) {
	l, hook := logrustest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	emit(Logrus(l))

	if len(hook.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(hook.Entries))
	}

	last := hook.LastEntry()
	if last.Level != logrus.ErrorLevel || last.Message != "erase failed" {
		t.Errorf("last entry = %v %q", last.Level, last.Message)
	}
	if last.Data["offset"] != 4096 {
		t.Errorf("offset = %v, want 4096", last.Data["offset"])
	}
	if hook.Entries[0].Data["sector"] != 3 {
		t.Errorf("sector = %v, want 3", hook.Entries[0].Data["sector"])
	}
}

func TestZerolog(t *testing.T) {
	var buf bytes.Buffer
	emit(Zerolog(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	lines := jsonLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0]["level"] != "debug" || lines[0]["message"] != "polling" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[0]["sector"] != float64(3) {
		t.Errorf("sector = %v, want 3", lines[0]["sector"])
	}
	if lines[2]["level"] != "error" || lines[2]["error"] != "flag 0x20" {
		t.Errorf("last line = %v", lines[2])
	}
}

func TestGoKit(t *testing.T) {
	var buf bytes.Buffer
	emit(GoKit(gokitlog.NewLogfmtLogger(&buf)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"level=debug msg=polling sector=3",
		"level=info msg=started id=20BA18",
		`level=error msg="erase failed" error="flag 0x20" offset=4096`,
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestFields(t *testing.T) {
	tests := []struct {
		name string
		kv   []interface{}
		want map[string]interface{}
	}{
		{
			name: "pairs",
			kv:   []interface{}{"a", 1, "b", "x"},
			want: map[string]interface{}{"a": 1, "b": "x"},
		},
		{
			name: "non-string key",
			kv:   []interface{}{7, true},
			want: map[string]interface{}{"7": true},
		},
		{
			name: "dangling value",
			kv:   []interface{}{"a", 1, "orphan"},
			want: map[string]interface{}{"a": 1, badKey: "orphan"},
		},
		{
			name: "empty",
			want: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, fields(tt.kv)); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitError(t *testing.T) {
	boom := errors.New("boom")

	rest, err := splitError([]interface{}{"a", 1, "error", boom, "b", 2})
	if err != boom {
		t.Errorf("err = %v, want boom", err)
	}
	if diff := cmp.Diff([]interface{}{"a", 1, "b", 2}, rest); diff != "" {
		t.Errorf("rest mismatch (-want +got):\n%s", diff)
	}

	// A string under "error" stays a plain pair
	rest, err = splitError([]interface{}{"error", "text"})
	if err != nil || len(rest) != 2 {
		t.Errorf("splitError(string) = %v, %v", rest, err)
	}
}

func TestNop(t *testing.T) {
	emit(Nop())
}
