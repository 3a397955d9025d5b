package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()
	for _, want := range []string{"snutz", Version, GitCommit, runtime.Version()} {
		if !strings.Contains(info, want) {
			t.Errorf("Info() = %q, missing %q", info, want)
		}
	}
}

func TestShortDefault(t *testing.T) {
	if got := Short(); got != "dev" {
		t.Errorf("Short() = %q, want %q", got, "dev")
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "snutz-agent/dev" {
		t.Errorf("UserAgent() = %q, want %q", got, "snutz-agent/dev")
	}
}

func TestMap(t *testing.T) {
	m := Map()
	for _, key := range []string{"version", "git_commit", "build_date", "go_version", "os", "arch"} {
		if _, ok := m[key]; !ok {
			t.Errorf("Map() missing key %q", key)
		}
	}
	if m["go_version"] != runtime.Version() {
		t.Errorf("Map()[go_version] = %q, want %q", m["go_version"], runtime.Version())
	}
}
