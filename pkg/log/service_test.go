package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	config "github.com/mwantia/manifest/internal/config/server"
)

func newBufferLogger(cfg config.LogServerConfig) (*LoggerServiceImpl, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &LoggerServiceImpl{
		cfg:    cfg,
		level:  Parse(cfg.Level),
		mutex:  &sync.Mutex{},
		writer: buf,
	}, buf
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", Debug},
		{" TRACE ", Debug},
		{"info", Info},
		{"warning", Warn},
		{"ERROR", Error},
		{"fatal", Fatal},
		{"", Info},
		{"verbose", Info},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	l, buf := newBufferLogger(config.LogServerConfig{Level: "WARN", NoColor: true})

	l.Info("hidden")
	l.Warn("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry written at WARN level: %q", out)
	}
	if !strings.Contains(out, "WARN  shown 1") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestJSONEntry(t *testing.T) {
	l, buf := newBufferLogger(config.LogServerConfig{Level: "DEBUG", JSON: true})

	l.Named("reconcile").Named("sync").With("bucket", "data", "dangling").Debug("listed %d objects", 3)

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if entry.Service != "reconcile/sync" {
		t.Errorf("Service = %q", entry.Service)
	}
	if entry.Message != "listed 3 objects" || entry.Level != "DEBUG" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["bucket"] != "data" || entry.Fields["dangling"] != "(missing)" {
		t.Errorf("Fields = %v", entry.Fields)
	}
}

func TestWithDoesNotLeak(t *testing.T) {
	l, buf := newBufferLogger(config.LogServerConfig{Level: "INFO", NoColor: true})

	_ = l.With("sample", "s1")
	l.Info("plain")

	if strings.Contains(buf.String(), "sample=") {
		t.Errorf("parent logger picked up child fields: %q", buf.String())
	}
}
