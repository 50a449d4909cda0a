// Package status exposes a read-only HTTP view over a permissions
// registry, for operational visibility (spec_full.md §4.5). It is purely
// additive: nothing in the core protocol depends on it, and
// Manager.Publish/Subscribe never start it implicitly.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Registry is the minimal view this package needs of the manager, avoiding
// an import cycle back into the root package.
type Registry interface {
	Snapshot() map[string]map[[16]byte]Record
	ActiveSessions() []Session
}

// Record mirrors send.PermissionRecord's two fields for JSON rendering.
type Record struct {
	Permission string `json:"permission"`
	Status     string `json:"status"`
}

// Session is one in-flight Publish/Subscribe session. Peer is empty until
// that session's handshake completes.
type Session struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Path string `json:"path"`
	Peer string `json:"peer,omitempty"`
}

// NewHandler builds a chi router serving:
//
//	GET /permissions — the full path -> peer -> {permission, status} map
//	GET /sessions    — the active session set (role, path, peer if known)
func NewHandler(reg Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/permissions", func(w http.ResponseWriter, req *http.Request) {
		snap := reg.Snapshot()
		out := make(map[string]map[string]Record, len(snap))
		for path, peers := range snap {
			byPeer := make(map[string]Record, len(peers))
			for id, rec := range peers {
				byPeer[hexID(id)] = rec
			}
			out[path] = byPeer
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})
	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reg.ActiveSessions())
	})
	return r
}

func hexID(id [16]byte) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 32)
	for i, b := range id {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}
