package send

import (
	"fmt"

	"github.com/google/uuid"
)

// PeerId is a 128-bit RFC 4122 v4 identifier, carried as 16 raw bytes on
// the wire (spec §3). Each process generates one at startup and it is
// stable for the process lifetime.
type PeerId uuid.UUID

// NewPeerId generates a fresh random (v4) PeerId.
func NewPeerId() PeerId {
	return PeerId(uuid.New())
}

// Bytes returns the 16 raw bytes carried on the wire.
func (p PeerId) Bytes() []byte {
	u := uuid.UUID(p)
	b := make([]byte, 16)
	copy(b, u[:])
	return b
}

// ParsePeerId decodes the 16 raw bytes of a WELCOME/ACK frame into a
// PeerId. Returns ErrMalformedMessage if the slice isn't exactly 16 bytes.
func ParsePeerId(b []byte) (PeerId, error) {
	if len(b) != 16 {
		return PeerId{}, fmt.Errorf("%w: peer id has %d bytes, want 16", ErrMalformedMessage, len(b))
	}
	var u uuid.UUID
	copy(u[:], b)
	return PeerId(u), nil
}

func (p PeerId) String() string {
	return uuid.UUID(p).String()
}

// RemoteAddress identifies a peer's TCP endpoint (spec §3).
type RemoteAddress struct {
	IP   string
	Port int
}

func (a RemoteAddress) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}
