package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("slot written", "slot", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "slot written" || entry["slot"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "text", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = SetLevel("info") })

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %q", buf.String())
	}

	tests := []string{"debug", "info", "warn", "error", "off"}
	for _, level := range tests {
		if err := SetLevel(level); err != nil {
			t.Fatalf("SetLevel(%s): %v", level, err)
		}
		if got := GetLevel(); got != level {
			t.Errorf("GetLevel() = %q, want %q", got, level)
		}
	}
	if Enabled() {
		t.Error("Enabled() = true at off")
	}
	l.Error("still hidden")
	if buf.Len() != 0 {
		t.Errorf("error written at off: %q", buf.String())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel accepted an unknown level")
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	l.Info("config",
		"encryption_key", "hunter2",
		slog.Group("security", slog.String("passphrase", "abc")),
		"title", "Chapter 1",
	)
	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, `"abc"`) {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "Chapter 1") {
		t.Errorf("non-secret value redacted: %s", out)
	}

	for key, want := range map[string]bool{"Encryption_Key": true, "db_secret": true, "slot": false} {
		if IsSensitiveKey(key) != want {
			t.Errorf("IsSensitiveKey(%q) = %v", key, !want)
		}
	}
}

func TestNotice(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	var logBuf, out bytes.Buffer
	l, _ := New(Config{Level: "off", Format: "text", Output: &logBuf})
	Notice(context.Background(), l, &out, "save failed", "slot", 2, "secret", "x")
	if got := out.String(); got != "save failed slot=2 secret=***REDACTED***\n" {
		t.Errorf("notice = %q", got)
	}

	out.Reset()
	_ = SetLevel("error")
	Notice(context.Background(), l, &out, "save failed")
	if out.Len() != 0 || !strings.Contains(logBuf.String(), "save failed") {
		t.Errorf("notice with logging on: out=%q log=%q", out.String(), logBuf.String())
	}
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext did not return the stored logger")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger is not slog.Default")
	}

	ctx = WithSaveID(ctx, "svid-1")
	if SaveIDFromContext(ctx) != "svid-1" {
		t.Errorf("SaveIDFromContext = %q", SaveIDFromContext(ctx))
	}
	L(ctx).Info("loaded")
	if !strings.Contains(buf.String(), `"save_id":"svid-1"`) {
		t.Errorf("L() missing save_id: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger is enabled")
	}
}
