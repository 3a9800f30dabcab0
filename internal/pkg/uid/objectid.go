package uid

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// ErrNoNodeIdentity indicates that neither machine-id nor hostname could
// supply a stable node identity.
var ErrNoNodeIdentity = errors.New("uid: cannot determine stable node identity (machine-id/hostname unavailable)")

// ObjectIDGenerator produces 32-byte identifiers rendered as 64-char hex.
//
// Layout: 6-byte millisecond timestamp, 6-byte node id, 2-byte pid, 4-byte
// counter, 14 random bytes. The timestamp prefix keeps ids roughly sortable
// by creation time.
type ObjectIDGenerator struct {
	nodeID  [6]byte
	pid     uint16
	counter atomic.Uint32
}

// NewObjectIDGenerator builds a generator bound to this host and process.
func NewObjectIDGenerator() (*ObjectIDGenerator, error) {
	identity, err := nodeIdentity()
	if err != nil {
		return nil, err
	}

	g := &ObjectIDGenerator{pid: uint16(os.Getpid())}

	sum := sha256.Sum256([]byte(identity))
	copy(g.nodeID[:], sum[:6])

	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	g.counter.Store(binary.BigEndian.Uint32(seed[:]))

	return g, nil
}

// nodeIdentity prefers /etc/machine-id and falls back to the hostname.
func nodeIdentity() (string, error) {
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}

	if h, err := os.Hostname(); err == nil {
		if h = strings.TrimSpace(h); h != "" {
			return h, nil
		}
	}

	return "", ErrNoNodeIdentity
}

// Generate returns the next identifier as a 64-char hex string.
func (g *ObjectIDGenerator) Generate() string {
	var raw [32]byte

	ms := uint64(time.Now().UnixMilli())
	binary.BigEndian.PutUint64(raw[:8], ms<<16)

	copy(raw[6:12], g.nodeID[:])
	binary.BigEndian.PutUint16(raw[12:14], g.pid)
	binary.BigEndian.PutUint32(raw[14:18], g.counter.Add(1))

	// Random tail; a failed read falls back to a digest of the prefix.
	if _, err := rand.Read(raw[18:]); err != nil {
		sum := sha256.Sum256(raw[:18])
		copy(raw[18:], sum[:14])
	}

	var out [64]byte
	hex.Encode(out[:], raw[:])

	return string(out[:])
}
