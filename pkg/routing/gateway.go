// Package routing installs and tears down the host routes a client needs
// to reach the tunnel server while still routing its other traffic through
// the tunnel's virtual interface.
package routing

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Gateway holds the state needed to undo whatever routes Acquire installed.
// Its zero value is not usable; build one with Acquire.
type Gateway struct {
	peerIP           string
	savedGW          string
	installedDefault bool
	platform         string
}

// Acquire snapshots the host's current default gateway, pins a host route
// to peerIP through that saved gateway (so the tunnel's own traffic keeps
// reaching the server once the default route changes), and, if
// installDefault is true, replaces the default route with tunnelGW.
//
// On any failure after the host route is pinned, Acquire rolls back what
// it already did before returning the error.
func Acquire(peerIP, tunnelGW string, installDefault bool) (*Gateway, error) {
	platform := runtime.GOOS

	savedGW, err := currentDefaultGateway(platform)
	if err != nil {
		return nil, fmt.Errorf("routing: read default gateway: %w", err)
	}

	if err := addHostRoute(platform, peerIP, savedGW); err != nil {
		return nil, fmt.Errorf("routing: pin host route to %s: %w", peerIP, err)
	}

	gw := &Gateway{peerIP: peerIP, savedGW: savedGW, platform: platform}

	if installDefault {
		if err := replaceDefaultRoute(platform, tunnelGW); err != nil {
			_ = deleteHostRoute(platform, peerIP)
			return nil, fmt.Errorf("routing: install default route via %s: %w", tunnelGW, err)
		}
		gw.installedDefault = true
	}

	return gw, nil
}

// Release undoes everything Acquire installed: it restores the saved
// default gateway (if a new one was installed) and removes the pinned host
// route. Both steps are best-effort: a failed step does not stop the
// other, and Release returns the errors of the steps that failed (nil when
// both succeed) so the caller can log them while the process tears down.
func (g *Gateway) Release() []error {
	var errs []error
	if g.installedDefault {
		if err := replaceDefaultRoute(g.platform, g.savedGW); err != nil {
			errs = append(errs, fmt.Errorf("routing: restore default route via %s: %w", g.savedGW, err))
		}
	}
	if err := deleteHostRoute(g.platform, g.peerIP); err != nil {
		errs = append(errs, fmt.Errorf("routing: remove host route to %s: %w", g.peerIP, err))
	}
	return errs
}

func currentDefaultGateway(platform string) (string, error) {
	switch platform {
	case "linux":
		return currentDefaultGatewayLinux()
	case "darwin":
		return currentDefaultGatewayDarwin()
	default:
		return "", fmt.Errorf("unsupported platform: %s", platform)
	}
}

func addHostRoute(platform, peerIP, gw string) error {
	switch platform {
	case "linux":
		return run("ip", "route", "add", peerIP+"/32", "via", gw)
	case "darwin":
		return run("route", "add", "-host", peerIP, gw)
	default:
		return fmt.Errorf("unsupported platform: %s", platform)
	}
}

func deleteHostRoute(platform, peerIP string) error {
	switch platform {
	case "linux":
		return run("ip", "route", "del", peerIP+"/32")
	case "darwin":
		return run("route", "delete", "-host", peerIP)
	default:
		return fmt.Errorf("unsupported platform: %s", platform)
	}
}

func replaceDefaultRoute(platform, gw string) error {
	switch platform {
	case "linux":
		return run("ip", "route", "replace", "default", "via", gw)
	case "darwin":
		if err := run("route", "change", "default", gw); err != nil {
			return run("route", "add", "default", gw)
		}
		return nil
	default:
		return fmt.Errorf("unsupported platform: %s", platform)
	}
}

func currentDefaultGatewayLinux() (string, error) {
	out, err := exec.Command("ip", "route", "show", "default").Output()
	if err != nil {
		return "", err
	}
	gw, ok := extractField(string(out), "via")
	if !ok {
		return "", fmt.Errorf("no default gateway found in %q", out)
	}
	return gw, nil
}

func currentDefaultGatewayDarwin() (string, error) {
	out, err := exec.Command("route", "-n", "get", "default").Output()
	if err != nil {
		return "", err
	}
	gw, ok := extractField(string(out), "gateway:")
	if !ok {
		return "", fmt.Errorf("no default gateway found in %q", out)
	}
	return gw, nil
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %v: %w (output: %s)", name, args, err, out)
	}
	return nil
}
