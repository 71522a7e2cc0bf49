package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get(1)
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.SaveSchema != 1 {
		t.Errorf("SaveSchema = %d, want 1", info.SaveSchema)
	}
	if info.Version == "" || info.Commit == "" {
		t.Errorf("empty fields: %+v", info)
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v9.9.9"

	if got := Get(1).Version; got != "v9.9.9" {
		t.Errorf("Version = %q, want ldflags value", got)
	}
}

func TestInfo_String(t *testing.T) {
	s := Info{Version: "v1", Commit: "abc", BuildTime: "now", GoVersion: "go1.24"}.String()
	for _, part := range []string{"storyline v1", "(abc)", "now", "go1.24"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}
