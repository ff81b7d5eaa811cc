package routing

import (
	"fmt"
	"os"
)

const resolvConfPath = "/etc/resolv.conf"

// SetDNS overwrites /etc/resolv.conf with a single nameserver line. This
// is destructive: the file's previous contents are not saved, and nothing
// restores them when the tunnel closes, matching the client behavior this
// package reproduces.
func SetDNS(dns string) error {
	content := fmt.Sprintf("nameserver %s\n", dns)
	if err := os.WriteFile(resolvConfPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("routing: write %s: %w", resolvConfPath, err)
	}
	return nil
}
