package layer3

import "testing"

func TestUnitNameLinux(t *testing.T) {
	// unitName's branch is keyed on runtime.GOOS, so this only exercises
	// whichever branch the test happens to run on; both are deterministic
	// given GOOS, which is what matters here.
	name := unitName(3)
	if name != "" && name != "tun3" {
		t.Fatalf("unexpected unit name %q", name)
	}
}
