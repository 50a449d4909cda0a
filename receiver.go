package send

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sweetsrepo/send/internal/logx"
	"github.com/sweetsrepo/send/internal/wire"
)

// CHUNK_SIZE/PIPELINE constants per spec §6.
const (
	ChunkSize = 250000
	Pipeline  = 10
)

// chunkWindow is the credit-based pipelining state for the file currently
// being received (spec §3). credit + outstanding in-flight FETCH requests
// always equals Pipeline while a file is open, maintained by plain
// counters — no general concurrency primitive is warranted for a
// single-goroutine-per-session counter (spec §9).
type chunkWindow struct {
	credit         int
	offset         int64
	chunksReceived int
	bytesReceived  int64
}

func newChunkWindow() chunkWindow {
	return chunkWindow{credit: Pipeline}
}

// Receiver pulls files from a connected peer into a destination
// directory (spec §4.4).
type Receiver struct {
	conn *wire.Conn
	self PeerId
	reg  *Registry
	dest string
	log  *logx.Topic

	remote      PeerId
	onHandshake func(PeerId)
}

// OnHandshake registers a callback invoked once the handshake completes
// and the remote peer id is known, letting a caller (e.g. Manager) see a
// session's peer before the transfer itself finishes.
func (r *Receiver) OnHandshake(fn func(PeerId)) {
	r.onHandshake = fn
}

// NewReceiver returns a Receiver that will store files under dest,
// creating dest if it doesn't already exist.
func NewReceiver(conn *wire.Conn, self PeerId, reg *Registry, dest string, log *logx.Topic) (*Receiver, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, newIoError("mkdir", err)
	}
	return &Receiver{conn: conn, self: self, reg: reg, dest: dest, log: log}, nil
}

// Run drives the receiver through handshake, advertise wait, and the
// per-file request/response loop until the transmitter signals overall
// completion or a fatal error/timeout occurs.
func (r *Receiver) Run(ctx context.Context) error {
	deadline := time.Now().Add(HandshakeDeadline)
	remote, err := ReceiverHandshake(ctx, r.conn, r.self, r.reg, r.dest, deadline, r.log)
	if err != nil {
		return err
	}
	r.remote = remote
	if r.onHandshake != nil {
		r.onHandshake(remote)
	}

	if err := r.awaitAdvertise(ctx, deadline); err != nil {
		return err
	}
	return r.requestFiles(ctx, deadline)
}

// awaitAdvertise is the Awaiting-Advertise state: loop on single-frame
// messages until UPDATES arrives.
func (r *Receiver) awaitAdvertise(ctx context.Context, deadline time.Time) error {
	for {
		msg, err := recvLoop(r.conn, ctx, deadline)
		if err != nil {
			return err
		}
		if msg.Tag == TagUPDATES {
			r.log.Infof("updates available from %s", r.remote)
			return nil
		}
	}
}

// requestFiles alternates Requesting-Name and Receiving-File until the
// transmitter's terminal DONE arrives. A NAME request is sent exactly
// once per file: any reply that isn't NAME or DONE is a stale FETCH
// reply for the file just completed (spec §4.4's "drains them by
// advancing credit until the next NAME reply arrives") and is silently
// discarded without reissuing NAME, so the transmitter never sees a
// duplicate request mid-file.
func (r *Receiver) requestFiles(ctx context.Context, deadline time.Time) error {
	for {
		if err := r.conn.Send(Encode(TagNAME)); err != nil {
			return newIoError("send name", err)
		}

		fname, done, err := r.awaitNameOrDone(ctx, deadline)
		if err != nil {
			return err
		}
		if done {
			r.log.Infof("transfer complete")
			return nil
		}
		if err := r.receiveFile(ctx, deadline, fname); err != nil {
			return err
		}
	}
}

// awaitNameOrDone waits for the transmitter's reply to the NAME request
// just sent, silently draining any stray FETCH reply left over from the
// file just completed (spec §4.4).
func (r *Receiver) awaitNameOrDone(ctx context.Context, deadline time.Time) (fname string, done bool, err error) {
	for {
		msg, err := recvLoop(r.conn, ctx, deadline)
		if err != nil {
			return "", false, err
		}
		switch msg.Tag {
		case TagDONE:
			return "", true, nil
		case TagNAME:
			if len(msg.Frames) == 0 {
				continue // malformed in this context; keep draining
			}
			return string(msg.Frames[0]), false, nil
		default:
			// stray reply for the file just finished; keep draining
		}
	}
}

// receiveFile resolves fname against dest, creates any missing parent
// directories, and drives the credit-based FETCH pipeline until a short
// read marks end of file (spec §4.4).
func (r *Receiver) receiveFile(ctx context.Context, deadline time.Time, fname string) error {
	full := filepath.Join(r.dest, filepath.FromSlash(fname))
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newIoError("mkdir", err)
		}
	}
	f, err := os.Create(full)
	if err != nil {
		return newIoError("create", err)
	}
	defer f.Close()

	win := newChunkWindow()
	for {
		for win.credit > 0 {
			if err := r.conn.Send(Encode(TagFETCH, encodeASCIIInt(win.offset), encodeASCIIInt(ChunkSize))); err != nil {
				return newIoError("send fetch", err)
			}
			win.offset += ChunkSize
			win.credit--
		}

		msg, err := recvLoop(r.conn, ctx, deadline)
		if err != nil {
			return err
		}
		if msg.Tag != TagFETCH || len(msg.Frames) != 1 {
			return fmt.Errorf("%w: expected FETCH reply, got %s", ErrProtocolError, msg.Tag)
		}
		data := msg.Frames[0]
		win.credit++
		win.chunksReceived++
		win.bytesReceived += int64(len(data))
		if len(data) > 0 {
			if _, err := f.Write(data); err != nil {
				return newIoError("write", err)
			}
		}
		if len(data) < ChunkSize {
			if err := r.conn.Send(Encode(TagDONE)); err != nil {
				return newIoError("send done", err)
			}
			r.log.Infof("received %s (%d bytes, %d chunks)", fname, win.bytesReceived, win.chunksReceived)
			return nil
		}
	}
}
