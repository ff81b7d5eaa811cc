// Package procutil holds small process-level preconditions the engines
// check before they touch the network stack.
package procutil

import (
	"fmt"
	"os"
)

// RequireRoot fails unless the process is running with an effective uid of
// 0, which both the TUN device and the routing table changes require.
func RequireRoot() error {
	if uid := os.Geteuid(); uid != 0 {
		return fmt.Errorf("procutil: must run as root, effective uid is %d", uid)
	}
	return nil
}
