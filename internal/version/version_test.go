package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldBuild := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldBuild })

	Version = "0.3.0"
	GitSHA = "0123456789abcdef0123"
	BuildTime = "2026-03-01T09:00:00Z"

	got := String("1.4")
	want := "ivclassify 0.3.0 (commit 0123456789ab, built 2026-03-01T09:00:00Z, weights 1.4)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestString_Defaults(t *testing.T) {
	got := String("1.4")
	if !strings.HasPrefix(got, "ivclassify dev (commit ") {
		t.Errorf("unexpected default version line %q", got)
	}
	if !strings.HasSuffix(got, "weights 1.4)") {
		t.Errorf("missing weights version in %q", got)
	}
}
