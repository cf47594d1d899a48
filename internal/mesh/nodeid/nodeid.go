// Package nodeid generates and persists the 128-bit node identifier
// described in design note §3, and the per-message identifiers used by the
// gossip engine. Generation follows the same crypto/rand-based approach
// arcsign uses for its own 128-bit identifiers.
package nodeid

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
)

// Generate returns a fresh random 128-bit identifier with the variant and
// version bits set the way a v4 UUID would, purely for readability when
// printed; nothing in the mesh core inspects those bits.
func Generate() meshtypes.NodeID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("nodeid: failed to read random bytes: %v", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return meshtypes.NodeID(b)
}

// GenerateMessageID returns a fresh random message identifier for
// originated gossip updates.
func GenerateMessageID() meshtypes.MessageID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("nodeid: failed to read random bytes: %v", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return meshtypes.MessageID(b)
}

// LoadOrCreate reads the node identifier from path, creating and
// persisting a new one on first run so the identifier survives restarts.
func LoadOrCreate(path string) (meshtypes.NodeID, error) {
	raw, err := os.ReadFile(path)
	if err == nil && len(raw) == 16 {
		var id meshtypes.NodeID
		copy(id[:], raw)
		return id, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return meshtypes.NodeID{}, fmt.Errorf("nodeid: failed to read %s: %w", path, err)
	}

	id := Generate()
	if dir := filepath.Dir(path); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
			return meshtypes.NodeID{}, fmt.Errorf("nodeid: failed to create directory %s: %w", dir, mkErr)
		}
	}
	if writeErr := os.WriteFile(path, id[:], 0o600); writeErr != nil {
		return meshtypes.NodeID{}, fmt.Errorf("nodeid: failed to persist node id to %s: %w", path, writeErr)
	}
	return id, nil
}
