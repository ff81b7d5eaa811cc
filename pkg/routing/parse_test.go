package routing

import "testing"

func TestExtractFieldLinux(t *testing.T) {
	out := "default via 192.168.1.1 dev eth0 proto dhcp metric 100\n"
	gw, ok := extractField(out, "via")
	if !ok || gw != "192.168.1.1" {
		t.Fatalf("got (%q, %v), want (192.168.1.1, true)", gw, ok)
	}
}

func TestExtractFieldDarwin(t *testing.T) {
	out := "   route to: default\ndestination: default\n       mask: default\n    gateway: 10.0.0.1\n  interface: en0\n"
	gw, ok := extractField(out, "gateway:")
	if !ok || gw != "10.0.0.1" {
		t.Fatalf("got (%q, %v), want (10.0.0.1, true)", gw, ok)
	}
}

func TestExtractFieldMissing(t *testing.T) {
	if _, ok := extractField("nothing relevant here", "via"); ok {
		t.Fatal("expected ok=false when the key is absent")
	}
}
