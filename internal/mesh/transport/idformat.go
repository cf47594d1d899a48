package transport

import (
	"fmt"
	"strings"
	"time"
)

// parseID16 parses a dashed hex identifier (as produced by
// meshtypes.NodeID.String / MessageID.String) back into 16 raw bytes.
func parseID16(s string) ([16]byte, error) {
	var out [16]byte
	clean := strings.ReplaceAll(s, "-", "")
	if len(clean) != 32 {
		return out, fmt.Errorf("identifier %q has unexpected length", s)
	}
	for i := 0; i < 16; i++ {
		var b byte
		if _, err := fmt.Sscanf(clean[i*2:i*2+2], "%02x", &b); err != nil {
			return out, fmt.Errorf("identifier %q is not valid hex: %w", s, err)
		}
		out[i] = b
	}
	return out, nil
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
