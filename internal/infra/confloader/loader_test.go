package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`
	Saves struct {
		WarnDelete bool `koanf:"warn_delete"`
		Depth      int  `koanf:"depth"`
	} `koanf:"saves"`
}

func defaults() testConfig {
	var c testConfig
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Saves.WarnDelete = true
	c.Saves.Depth = 10
	return c
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storyline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsKept(t *testing.T) {
	cfg := defaults()
	if err := NewLoader(WithEnvPrefix("STORYLINE_TEST_NONE_")).Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != defaults() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_Priority(t *testing.T) {
	path := writeFile(t, "log:\n  level: debug\n  format: text\nsaves:\n  depth: 3\n")
	t.Setenv("STORYLINE_LOG__LEVEL", "error")
	t.Setenv("STORYLINE_SAVES__WARN_DELETE", "false")

	cfg := defaults()
	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"log.format": "json", "saves.depth": 7}),
	)
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"env beats file", cfg.Log.Level, "error"},
		{"override beats file", cfg.Log.Format, "json"},
		{"override int", cfg.Saves.Depth, 7},
		{"env key with underscore", cfg.Saves.WarnDelete, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if l.FilePath() != path {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
	if l.Get("log.level") != "error" {
		t.Errorf("Get(log.level) = %v", l.Get("log.level"))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := defaults()
	err := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))).Load(&cfg)
	if err == nil {
		t.Fatal("Load with a missing file succeeded")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg := defaults()
	err := NewLoader(WithConfigFile(writeFile(t, "log: [unclosed"))).Load(&cfg)
	if err == nil {
		t.Fatal("Load with invalid YAML succeeded")
	}
}

func TestEnvKey(t *testing.T) {
	l := NewLoader()
	tests := map[string]string{
		"STORYLINE_LOG__LEVEL":           "log.level",
		"STORYLINE_SAVES__WARN_DELETE":   "saves.warn_delete",
		"STORYLINE_STORAGE__BADGER__DIR": "storage.badger.dir",
	}
	for in, want := range tests {
		if got := l.envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
