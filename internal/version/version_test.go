// ABOUTME: Tests for version identification
// ABOUTME: Checks the product name and that the build-time version override shows up
package version

import (
	"regexp"
	"testing"
)

func TestProductIsVumeter(t *testing.T) {
	if Product != "vumeter" {
		t.Errorf("Product = %q, want vumeter", Product)
	}
}

func TestDefaultVersionIsSemver(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+`).MatchString(Version) {
		t.Errorf("Version %q is not a release version", Version)
	}
}

func TestStringFollowsOverride(t *testing.T) {
	// -ldflags -X can only set a package var, so Version must stay assignable
	saved := Version
	defer func() { Version = saved }()

	Version = "1.2.3-rc1"
	if got, want := String(), "vumeter 1.2.3-rc1"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
