package send

import (
	"fmt"
	"net/http"

	"github.com/sweetsrepo/send/internal/status"
)

// managerView adapts Manager to the minimal shape internal/status needs,
// without internal/status importing this package (which would cycle back
// through Manager.StatusHandler).
type managerView struct{ m *Manager }

func (v managerView) Snapshot() map[string]map[[16]byte]status.Record {
	snap := v.m.Reg.Snapshot()
	out := make(map[string]map[[16]byte]status.Record, len(snap))
	for path, peers := range snap {
		byPeer := make(map[[16]byte]status.Record, len(peers))
		for id, rec := range peers {
			byPeer[[16]byte(id)] = status.Record{
				Permission: rec.Permission.String(),
				Status:     rec.Status.String(),
			}
		}
		out[path] = byPeer
	}
	return out
}

func (v managerView) ActiveSessions() []status.Session {
	snaps := v.m.activeSessions()
	out := make([]status.Session, 0, len(snaps))
	for _, s := range snaps {
		sess := status.Session{
			ID:   fmt.Sprintf("%d", s.ID),
			Role: s.Role,
			Path: s.Path,
		}
		if s.HasPeer {
			sess.Peer = s.Peer.String()
		}
		out = append(out, sess)
	}
	return out
}

// StatusHandler returns a read-only HTTP handler over the manager's
// permissions registry and active session set (spec_full.md §4.5). It's
// purely additive — the caller decides whether and where to mount it
// (e.g. http.ListenAndServe on a loopback-only address); Publish/Subscribe
// never start it.
func (m *Manager) StatusHandler() http.Handler {
	return status.NewHandler(managerView{m: m})
}
