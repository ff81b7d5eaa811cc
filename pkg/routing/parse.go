package routing

import "strings"

// extractField finds key in whitespace-separated output and returns the
// token immediately following it. It handles both "via <ip>" (Linux "ip
// route" output) and "gateway: <ip>" (BSD "route get" output, where the
// key itself carries the colon).
func extractField(output, key string) (string, bool) {
	fields := strings.Fields(output)
	for i, f := range fields {
		if f == key && i+1 < len(fields) {
			return fields[i+1], true
		}
	}
	return "", false
}
