package send

import (
	"context"
	"time"

	"github.com/sweetsrepo/send/internal/wire"
)

// recvLoop blocks until a message arrives, the deadline elapses, or ctx is
// canceled. It implements the "bounded receive, recheck deadline" pattern
// spec §5 requires of both state machines: each individual Recv is capped
// at RecvPollInterval so cancellation and the wall-clock deadline are
// never blocked on for longer than that.
func recvLoop(conn *wire.Conn, ctx context.Context, deadline time.Time) (Message, error) {
	for {
		if time.Now().After(deadline) {
			return Message{}, ErrTransferTimeout
		}
		select {
		case <-ctx.Done():
			return Message{}, ErrTransportClosed
		default:
		}
		if err := conn.SetRecvTimeout(RecvPollInterval); err != nil {
			return Message{}, newIoError("recv", err)
		}
		frames, err := conn.Recv()
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			return Message{}, newIoError("recv", err)
		}
		return Decode(frames)
	}
}
