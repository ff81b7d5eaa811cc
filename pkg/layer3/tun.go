// Package layer3 adapts the kernel's point-to-point TUN device to the
// byte-stream read/write surface the tunnel engine consumes.
package layer3

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/songgao/water"
)

// MTU is the fixed IP MTU applied to every TUN device this package brings up.
// It leaves headroom under the default Ethernet MTU for the AEAD tag and
// Snappy framing added by the tunnel engine before the packet is sent.
const MTU = 1380

// MaxUnit bounds the unit-number search in Create: unit 255 is never tried.
const MaxUnit = 255

// Device is a single point-to-point TUN interface.
type Device struct {
	iface *water.Interface
	name  string
}

// Create opens a TUN device, preferring the given unit number. If the
// preferred unit is already taken, it retries with successive unit numbers
// up to MaxUnit before giving up.
func Create(preferredUnit int) (*Device, error) {
	var lastErr error
	for unit := preferredUnit; unit < MaxUnit; unit++ {
		cfg := water.Config{DeviceType: water.TUN}
		cfg.Name = unitName(unit)

		iface, err := water.New(cfg)
		if err != nil {
			lastErr = err
			continue
		}
		return &Device{iface: iface, name: iface.Name()}, nil
	}
	return nil, fmt.Errorf("layer3: unable to create TUN device (last error: %v)", lastErr)
}

// unitName names the device the way the host platform expects it. Linux
// takes an explicit tunN name; the BSD-derived utun driver assigns its own
// name and this is only a hint some water versions honor.
func unitName(unit int) string {
	if runtime.GOOS == "linux" {
		return "tun" + strconv.Itoa(unit)
	}
	return ""
}

// Name returns the interface name the kernel assigned.
func (d *Device) Name() string {
	return d.name
}

// Up assigns 10.10.10.<id>/24 to the interface, sets its MTU to MTU, and
// brings it up, shelling out to the platform's ifconfig-equivalent.
func (d *Device) Up(id uint8) error {
	addr := fmt.Sprintf("10.10.10.%d", id)

	switch runtime.GOOS {
	case "linux":
		if out, err := exec.Command("ifconfig", d.name, addr+"/24").CombinedOutput(); err != nil {
			return fmt.Errorf("layer3: assign address: %w (output: %s)", err, out)
		}
		if out, err := exec.Command("ifconfig", d.name, "mtu", strconv.Itoa(MTU), "up").CombinedOutput(); err != nil {
			return fmt.Errorf("layer3: bring up interface: %w (output: %s)", err, out)
		}
	case "darwin":
		if out, err := exec.Command("ifconfig", d.name, addr, "10.10.10.1").CombinedOutput(); err != nil {
			return fmt.Errorf("layer3: assign address: %w (output: %s)", err, out)
		}
		if out, err := exec.Command("ifconfig", d.name, "mtu", strconv.Itoa(MTU), "up").CombinedOutput(); err != nil {
			return fmt.Errorf("layer3: bring up interface: %w (output: %s)", err, out)
		}
	default:
		return fmt.Errorf("layer3: unsupported platform %q", runtime.GOOS)
	}
	return nil
}

// Read returns one IP packet's bytes. The BSD-derived water driver strips
// the 4-byte address-family header internally, so callers on every
// supported platform always see a bare IP datagram.
func (d *Device) Read(buf []byte) (int, error) {
	return d.iface.Read(buf)
}

// Write writes one IP packet. As with Read, any BSD address-family framing
// is handled internally by the water driver.
func (d *Device) Write(buf []byte) (int, error) {
	return d.iface.Write(buf)
}

// Close releases the underlying device handle. The kernel tears down the
// interface itself once the handle is closed.
func (d *Device) Close() error {
	return d.iface.Close()
}
