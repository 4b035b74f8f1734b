package version

import "testing"

func TestBuildInfoNeverEmpty(t *testing.T) {
	for name, got := range map[string]string{
		"Version": Version(),
		"Commit":  Commit(),
		"Date":    Date(),
	} {
		if got == "" {
			t.Errorf("%s() returned empty string", name)
		}
	}
}

func TestLdflagsWin(t *testing.T) {
	old := version
	version = "v1.2.3"
	defer func() { version = old }()
	if got := Version(); got != "v1.2.3" {
		t.Fatalf("Version() = %q", got)
	}
}
