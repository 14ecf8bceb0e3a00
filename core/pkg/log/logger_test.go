package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestWithComponentWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	logger := WithComponent("stream")
	logger.Info().Str(FieldRunID, "run-1").Msg("connected")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if entry["component"] != "stream" {
		t.Fatalf("expected component stream, got %v", entry["component"])
	}
	if entry["service"] != "test" {
		t.Fatalf("expected service test, got %v", entry["service"])
	}
	if entry["run_id"] != "run-1" {
		t.Fatalf("expected run_id run-1, got %v", entry["run_id"])
	}
}

func TestConfigureRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	logger := Base()
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("expected warn line to be written")
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("line\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
}
