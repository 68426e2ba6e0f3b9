package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitRejectsBadLevel(t *testing.T) {
	if err := Init("production", "chatty"); err == nil {
		t.Error("expected error for unknown log level")
	}
	if err := Init("production", "info"); err != nil {
		t.Errorf("Init: %v", err)
	}
}

func TestEveryLevelEmitsComponentField(t *testing.T) {
	var buf bytes.Buffer
	if err := Init("production", "debug", &buf); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { Init("production", "info") })

	fields := map[string]interface{}{"order_id": "ord-1"}
	DebugC("queue", "debug plain")
	DebugCF("queue", "debug fields", fields)
	InfoC("queue", "info plain")
	InfoCF("queue", "info fields", fields)
	WarnC("queue", "warn plain")
	WarnCF("queue", "warn fields", fields)
	ErrorC("queue", "error plain")
	ErrorCF("queue", "error fields", fields)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("emitted %d lines, want 8", len(lines))
	}
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("non-JSON log line %q: %v", line, err)
		}
		if entry["component"] != "queue" {
			t.Errorf("component = %v in %q", entry["component"], line)
		}
	}

	var withFields map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &withFields); err != nil {
		t.Fatal(err)
	}
	if withFields["order_id"] != "ord-1" {
		t.Errorf("structured field missing: %q", lines[1])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init("production", "warn", &buf); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { Init("production", "info") })

	InfoC("api", "suppressed")
	WarnC("api", "kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn line should pass the filter")
	}
}
