package send

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/sweetsrepo/send/internal/logx"
	"github.com/sweetsrepo/send/internal/wire"
)

// HandshakeDeadline is the wall-clock budget from the first handshake
// attempt to success, per spec §4.2/§5.
const HandshakeDeadline = 30 * time.Minute

// RecvPollInterval is the bounded per-call receive wait (spec §5),
// letting a session periodically re-check its deadline and any
// cancellation signal between blocking calls.
const RecvPollInterval = time.Second

// ReceiverHandshake performs the receiver-initiated handshake (spec
// §4.2): send WELCOME, await ACK, retrying the send whenever the reply
// is malformed or the wait times out, until deadline elapses. On
// success it records the remote peer under destPath with ReadOnly
// permission and TagWELCOME status.
func ReceiverHandshake(ctx context.Context, conn *wire.Conn, self PeerId, reg *Registry, destPath string, deadline time.Time, log *logx.Topic) (PeerId, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var remote PeerId
	err := retry.Do(
		func() error {
			if err := conn.Send(Encode(TagWELCOME, self.Bytes())); err != nil {
				return wrapTransport(err)
			}
			if err := conn.SetRecvTimeout(RecvPollInterval); err != nil {
				return wrapTransport(err)
			}
			frames, err := conn.Recv()
			if err != nil {
				if wire.IsTimeout(err) {
					log.Debugf("welcome not yet acked, retrying")
					return errRetryHandshake
				}
				return wrapTransport(err)
			}
			msg, err := Decode(frames)
			if err != nil || msg.Tag != TagACK {
				log.Debugf("unexpected handshake reply, retrying")
				return errRetryHandshake
			}
			id, err := ParsePeerId(msg.Frames[0])
			if err != nil {
				return errRetryHandshake
			}
			remote = id
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(0),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return PeerId{}, ErrHandshakeTimeout
		}
		return PeerId{}, err
	}

	reg.Record(destPath, remote, PermissionRecord{Permission: ReadOnly, Status: TagWELCOME})
	log.Infof("welcome accepted from %s, starting transfer", remote)
	return remote, nil
}

// errRetryHandshake is a private sentinel telling retry.Do to try again;
// it never escapes ReceiverHandshake.
var errRetryHandshake = retryMarker{}

type retryMarker struct{}

func (retryMarker) Error() string { return "send: retrying handshake" }

// TransmitterHandshake performs the transmitter-responder half of the
// handshake (spec §4.2): await WELCOME, reply ACK. On success it records
// the remote peer under publishPath with WriteOnly permission and
// TagWELCOME status.
func TransmitterHandshake(ctx context.Context, conn *wire.Conn, self PeerId, reg *Registry, publishPath string, deadline time.Time, log *logx.Topic) (PeerId, error) {
	for {
		if time.Now().After(deadline) {
			return PeerId{}, ErrHandshakeTimeout
		}
		select {
		case <-ctx.Done():
			return PeerId{}, ErrTransportClosed
		default:
		}
		if err := conn.SetRecvTimeout(RecvPollInterval); err != nil {
			return PeerId{}, wrapTransport(err)
		}
		frames, err := conn.Recv()
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			return PeerId{}, wrapTransport(err)
		}
		msg, err := Decode(frames)
		if err != nil || msg.Tag != TagWELCOME {
			continue
		}
		remote, err := ParsePeerId(msg.Frames[0])
		if err != nil {
			continue
		}
		if err := conn.Send(Encode(TagACK, self.Bytes())); err != nil {
			return PeerId{}, wrapTransport(err)
		}
		reg.Record(publishPath, remote, PermissionRecord{Permission: WriteOnly, Status: TagWELCOME})
		log.Infof("welcomed %s, starting transfer", remote)
		return remote, nil
	}
}

func wrapTransport(err error) error {
	return &IoError{Op: "handshake", Err: err}
}
