package send

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sweetsrepo/send/internal/logx"
	"github.com/sweetsrepo/send/internal/wire"
)

// UpdatesAvailable is the injectable change-detection predicate spec §4.3
// names; the default always returns true (spec §9: "the source's stub").
// See internal/watch for a concrete, fsnotify-backed alternative.
type UpdatesAvailable func() bool

// AlwaysUpdated is the spec's default updates_available() stub.
func AlwaysUpdated() bool { return true }

// Transmitter serves the walked-file list from a published path to a
// single connected peer (spec §4.3).
type Transmitter struct {
	conn    *wire.Conn
	self    PeerId
	reg     *Registry
	path    string // as published: a directory, or a single file
	updates UpdatesAvailable
	log     *logx.Topic

	remote      PeerId
	onHandshake func(PeerId)
}

// OnHandshake registers a callback invoked once the handshake completes
// and the remote peer id is known, letting a caller (e.g. Manager) see a
// session's peer before the transfer itself finishes.
func (t *Transmitter) OnHandshake(fn func(PeerId)) {
	t.onHandshake = fn
}

// NewTransmitter validates that path exists (spec §4.3: "publish on a
// non-existent path fails with PathMissing before the state machine
// starts") and returns a Transmitter ready to Run.
func NewTransmitter(conn *wire.Conn, self PeerId, reg *Registry, path string, updates UpdatesAvailable, log *logx.Topic) (*Transmitter, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrPathMissing
	}
	if updates == nil {
		updates = AlwaysUpdated
	}
	return &Transmitter{conn: conn, self: self, reg: reg, path: path, updates: updates, log: log}, nil
}

// Run drives the transmitter through handshake, advertise, and serve
// until the peer's file list is exhausted or a fatal error/timeout
// occurs.
func (t *Transmitter) Run(ctx context.Context) error {
	deadline := time.Now().Add(HandshakeDeadline)
	remote, err := TransmitterHandshake(ctx, t.conn, t.self, t.reg, t.path, deadline, t.log)
	if err != nil {
		return err
	}
	t.remote = remote
	if t.onHandshake != nil {
		t.onHandshake(remote)
	}

	for !t.updates() {
		select {
		case <-ctx.Done():
			return ErrTransportClosed
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return ErrHandshakeTimeout
		}
	}

	if err := t.conn.Send(Encode(TagUPDATES)); err != nil {
		return newIoError("send updates", err)
	}

	baseDir, fnames, err := walkFileList(t.path)
	if err != nil {
		return newIoError("walk", err)
	}
	t.log.Infof("advertising %d file(s) to %s", len(fnames), t.remote)

	return t.serve(ctx, deadline, baseDir, fnames)
}

// walkFileList materializes the snapshot TransferJob spec §3 describes:
// a depth-first walk of path, producing relative names. A single file
// publish yields one entry, the bare filename, with baseDir its parent
// (spec §4.3, §8: "a single-file publish sends the bare filename").
func walkFileList(path string) (baseDir string, fnames []string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if !info.IsDir() {
		return filepath.Dir(path), []string{filepath.Base(path)}, nil
	}
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		fnames = append(fnames, rel)
		return nil
	})
	return path, fnames, err
}

// serve answers NAME/FETCH/DONE requests from the peer until the file
// list is exhausted (spec §4.3). The source file for the current index
// is opened once, at NAME-reply time, and kept open across FETCH
// messages — correcting the known issue in spec §9 where the original
// reopened it on every request.
func (t *Transmitter) serve(ctx context.Context, deadline time.Time, baseDir string, fnames []string) error {
	i := 0
	var cur *os.File
	defer func() {
		if cur != nil {
			cur.Close()
		}
	}()

	for {
		msg, err := recvLoop(t.conn, ctx, deadline)
		if err != nil {
			return err
		}
		switch msg.Tag {
		case TagNAME:
			if i >= len(fnames) {
				if err := t.conn.Send(Encode(TagDONE)); err != nil {
					return newIoError("send done", err)
				}
				t.log.Infof("transfer complete for %s", t.remote)
				return nil
			}
			if cur != nil {
				cur.Close()
				cur = nil
			}
			f, err := os.Open(filepath.Join(baseDir, fnames[i]))
			if err != nil {
				return newIoError("open", err)
			}
			cur = f
			if err := t.conn.Send(Encode(TagNAME, []byte(fnames[i]))); err != nil {
				return newIoError("send name", err)
			}

		case TagFETCH:
			if cur == nil || len(msg.Frames) != 2 {
				continue // protocol violation tolerated per spec §4.3 "any other tag — ignored"
			}
			offset, err := decodeASCIIInt(msg.Frames[0])
			if err != nil {
				return err
			}
			length, err := decodeASCIIInt(msg.Frames[1])
			if err != nil {
				return err
			}
			buf := make([]byte, length)
			n, readErr := cur.ReadAt(buf, offset)
			if readErr != nil && readErr != io.EOF {
				return newIoError("read", readErr)
			}
			if err := t.conn.Send(Encode(TagFETCH, buf[:n])); err != nil {
				return newIoError("send fetch", err)
			}

		case TagDONE:
			if cur != nil {
				cur.Close()
				cur = nil
			}
			i++
			if i >= len(fnames) {
				if err := t.conn.Send(Encode(TagDONE)); err != nil {
					return newIoError("send done", err)
				}
				t.log.Infof("transfer complete for %s", t.remote)
				return nil
			}

		default:
			// forward-compatible: ignore anything else
		}
	}
}
