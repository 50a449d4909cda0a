// Package wire implements the message-framed transport spec.md treats as
// an external collaborator (§1, §5): a reliable, per-peer-ordered,
// multipart-frame socket pair with a high-water-mark backpressure hook.
// No such transport is supplied in this codebase's surroundings, so this
// package provides a minimal one over net.Conn rather than reaching for an
// unrelated message-queue client that doesn't fit a bare point-to-point
// socket pair.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const maxFrameSize = 64 << 20 // 64MiB guards against a corrupt length prefix

// Conn wraps a net.Conn with length-prefixed multipart framing and a
// high-water-mark semaphore standing in for the external transport's flow
// control hook (spec §4.5). Its zero value is not usable; construct with
// NewConn.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader

	hwm chan struct{} // capacity == configured high-water-mark
}

// NewConn wraps nc for framed send/receive. hwm bounds the number of sent
// frame-sets awaiting a matching Recv; Send blocks once that many are
// outstanding, exerting the backpressure spec §4.5 assigns to the
// manager. A non-positive hwm disables the limit.
func NewConn(nc net.Conn, hwm int) *Conn {
	c := &Conn{nc: nc, r: bufio.NewReaderSize(nc, 32<<10)}
	if hwm > 0 {
		c.hwm = make(chan struct{}, hwm)
	}
	return c
}

// SetRecvTimeout bounds how long Recv waits for the next message before
// returning a timeout error, letting callers re-check a deadline or
// cancellation flag between calls (spec §5).
func (c *Conn) SetRecvTimeout(d time.Duration) error {
	return c.nc.SetReadDeadline(time.Now().Add(d))
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// Send writes one multipart frame list: a uint32 frame count, then for
// each frame a uint32 length followed by its bytes.
func (c *Conn) Send(frames [][]byte) error {
	if c.hwm != nil {
		c.hwm <- struct{}{}
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frames)))
	if _, err := c.nc.Write(hdr[:]); err != nil {
		return err
	}
	for _, f := range frames {
		binary.BigEndian.PutUint32(hdr[:], uint32(len(f)))
		if _, err := c.nc.Write(hdr[:]); err != nil {
			return err
		}
		if len(f) > 0 {
			if _, err := c.nc.Write(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Recv reads one multipart frame list. A read timeout set by
// SetRecvTimeout surfaces as a net.Error with Timeout() true; callers
// should treat that as "no message yet", not a fatal error.
func (c *Conn) Recv() ([][]byte, error) {
	count, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	if count > 1<<20 {
		return nil, fmt.Errorf("wire: frame count %d exceeds sane bound", count)
	}
	frames := make([][]byte, count)
	for i := range frames {
		n, err := c.readUint32()
		if err != nil {
			return nil, err
		}
		if n > maxFrameSize {
			return nil, fmt.Errorf("wire: frame size %d exceeds %d byte bound", n, maxFrameSize)
		}
		buf := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(c.r, buf); err != nil {
				return nil, err
			}
		}
		frames[i] = buf
	}
	if c.hwm != nil {
		select {
		case <-c.hwm:
		default:
		}
	}
	return frames, nil
}

func (c *Conn) readUint32() (uint32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

// IsTimeout reports whether err is a Recv/Send deadline expiry, as
// opposed to a genuine transport failure.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Listener accepts incoming connections for the transmitter (server) role.
type Listener struct {
	ln  net.Listener
	hwm int
}

// Listen binds port for the transmitter's server-role socket.
func Listen(port int, hwm int) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, hwm: hwm}, nil
}

// Accept blocks for the next inbound connection and wraps it as a Conn.
// spec.md's Non-goal of multi-receiver fan-out means a transmitter only
// ever services one connection per publish call; callers that want
// sequential sessions call Accept again after the previous one ends.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc, l.hwm), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial connects to addr for the receiver's client-role socket.
func Dial(addr string, hwm int) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, hwm), nil
}
