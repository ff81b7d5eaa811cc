package routing

import (
	"fmt"
	"os/exec"
	"runtime"
)

// EnableIPv4Forwarding turns on kernel IPv4 forwarding, a precondition for
// the server to relay packets between the tunnel interface and the
// internet-facing one.
func EnableIPv4Forwarding() error {
	switch runtime.GOOS {
	case "linux":
		return sysctl("net.ipv4.ip_forward=1")
	case "darwin":
		return sysctl("net.inet.ip.forwarding=1")
	default:
		return fmt.Errorf("routing: unsupported platform %q", runtime.GOOS)
	}
}

func sysctl(assignment string) error {
	cmd := exec.Command("sysctl", "-w", assignment)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sysctl -w %s: %w (output: %s)", assignment, err, out)
	}
	return nil
}
