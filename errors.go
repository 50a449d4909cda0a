package send

import "github.com/pkg/errors"

// Sentinel errors for the taxonomy described in spec §7. Wrap these with
// github.com/pkg/errors to attach peer/path/offset context; compare with
// errors.Is.
var (
	// ErrMalformedMessage indicates a wire shape violation: an unrecognized
	// tag, or a tag whose frame count/shape doesn't match spec §6.
	ErrMalformedMessage = errors.New("send: malformed message")

	// ErrProtocolError indicates a correctly-shaped but contextually illegal
	// message, e.g. a FETCH reply with no file open.
	ErrProtocolError = errors.New("send: protocol error")

	// ErrHandshakeTimeout indicates the 30-minute handshake deadline elapsed
	// before a WELCOME/ACK exchange completed.
	ErrHandshakeTimeout = errors.New("send: handshake timeout")

	// ErrTransferTimeout indicates the 30-minute deadline elapsed during an
	// in-progress transfer.
	ErrTransferTimeout = errors.New("send: transfer timeout")

	// ErrTransportClosed indicates the underlying transport was torn down;
	// sessions treat this as a graceful exit, not a failure to report.
	ErrTransportClosed = errors.New("send: transport closed")

	// ErrPathMissing indicates Manager.Publish was asked to publish a path
	// that doesn't exist.
	ErrPathMissing = errors.New("send: publish path does not exist")

	// ErrKeyMaterialMissing indicates the expected key file is absent.
	ErrKeyMaterialMissing = errors.New("send: key material missing")
)

// IoError wraps a disk read/write failure encountered mid-session. It is
// always fatal for the session that produced it and is surfaced to the
// Manager via the session's done channel.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return "send: io error during " + e.Op + ": " + e.Err.Error()
}

func (e *IoError) Unwrap() error { return e.Err }

func newIoError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: err}
}
