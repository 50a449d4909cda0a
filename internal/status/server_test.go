package status

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	snapshot map[string]map[[16]byte]Record
	sessions []Session
}

func (f fakeRegistry) Snapshot() map[string]map[[16]byte]Record { return f.snapshot }
func (f fakeRegistry) ActiveSessions() []Session                { return f.sessions }

func TestPermissionsEndpointRendersSnapshot(t *testing.T) {
	var peer [16]byte
	peer[0] = 0xab
	reg := fakeRegistry{
		snapshot: map[string]map[[16]byte]Record{
			"/pub": {peer: {Permission: "write-only", Status: "WELCOME"}},
		},
	}
	h := NewHandler(reg)

	req := httptest.NewRequest("GET", "/permissions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	var out map[string]map[string]Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Contains(t, out, "/pub")
}

func TestSessionsEndpointRendersActiveSessions(t *testing.T) {
	reg := fakeRegistry{
		sessions: []Session{
			{ID: "0", Role: "transmitter", Path: "/pub"},
			{ID: "1", Role: "receiver", Path: "/dest", Peer: "deadbeef"},
		},
	}
	h := NewHandler(reg)

	req := httptest.NewRequest("GET", "/sessions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	var out []Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, "deadbeef", out[1].Peer)
}

func TestSessionsEndpointEmptyWhenNoneActive(t *testing.T) {
	h := NewHandler(fakeRegistry{sessions: []Session{}})

	req := httptest.NewRequest("GET", "/sessions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	var out []Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Empty(t, out)
}
