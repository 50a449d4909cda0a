package send

import "fmt"

// PacketTag is the first frame of every wire message (spec §3, §6). It is
// a small closed enumeration; decode once at the edge and switch
// exhaustively on it afterward rather than comparing raw bytes.
type PacketTag uint8

const (
	// TagERR is reserved; this version never emits it.
	TagERR PacketTag = iota
	TagACK
	TagWELCOME
	TagUPDATES
	TagNAME
	TagDONE
	TagFETCH
)

// wireBytes are the bit-exact ASCII wire representations from spec §6.
var wireBytes = map[PacketTag][]byte{
	TagERR:     []byte("-1"),
	TagACK:     []byte("0"),
	TagWELCOME: []byte("1"),
	TagUPDATES: []byte("2"),
	TagNAME:    []byte("3"),
	TagDONE:    []byte("4"),
	TagFETCH:   []byte("5"),
}

var tagByWire = func() map[string]PacketTag {
	m := make(map[string]PacketTag, len(wireBytes))
	for t, b := range wireBytes {
		m[string(b)] = t
	}
	return m
}()

func (t PacketTag) String() string {
	switch t {
	case TagERR:
		return "ERR"
	case TagACK:
		return "ACK"
	case TagWELCOME:
		return "WELCOME"
	case TagUPDATES:
		return "UPDATES"
	case TagNAME:
		return "NAME"
	case TagDONE:
		return "DONE"
	case TagFETCH:
		return "FETCH"
	default:
		return fmt.Sprintf("PacketTag(%d)", uint8(t))
	}
}

// wire returns the tag's ASCII wire representation.
func (t PacketTag) wire() []byte {
	b, ok := wireBytes[t]
	if !ok {
		panic(fmt.Sprintf("send: unknown packet tag %d", uint8(t)))
	}
	return b
}

// parseTag recognizes a tag's wire byte string. It returns false for any
// byte string outside the closed set in spec §6.
func parseTag(b []byte) (PacketTag, bool) {
	t, ok := tagByWire[string(b)]
	return t, ok
}
