package send

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/sweetsrepo/send/internal/keys"
	"github.com/sweetsrepo/send/internal/logx"
	"github.com/sweetsrepo/send/internal/wire"
)

// Config is the manager's env-driven configuration (spec §4.5, §6: ports,
// key directories, default port). Populate with envconfig, prefix SEND_
// (e.g. SEND_PORT, SEND_PUBLIC_KEY_DIR).
type Config struct {
	Port          int    `envconfig:"PORT" default:"6000"`
	PublicKeyDir  string `envconfig:"PUBLIC_KEY_DIR" default:"public_keys"`
	PrivateKeyDir string `envconfig:"PRIVATE_KEY_DIR" default:"private_keys"`
	LogDir        string `envconfig:"LOG_DIR" default:""`
}

// LoadConfig reads Config from the environment, applying spec §6's
// defaults (port 6000, public_keys/private_keys directories) when unset.
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process("send", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Manager owns the process-wide PeerId, key directories, and permissions
// registry, and launches transmitter/receiver sessions on demand (spec
// §4.5). A single Manager is constructed once per process and passed
// explicitly to callers — spec.md §9 calls out avoiding hidden globals
// for exactly this kind of singleton.
type Manager struct {
	Self PeerId
	Reg  *Registry

	cfg Config
	log *logx.Logger

	mu    sync.Mutex
	group *errgroup.Group
	ctx   context.Context
	stop  context.CancelFunc

	sessMu     sync.Mutex
	sessions   map[uint64]*sessionEntry
	nextSessID uint64
}

// sessionEntry is one in-flight Publish/Subscribe session, tracked for the
// status endpoint's active-session view (spec_full.md §4.5). peer is
// filled in once the session's handshake completes; until then it reads
// zero.
type sessionEntry struct {
	role    string
	path    string
	peer    PeerId
	hasPeer bool
}

// sessionSnapshot is a point-in-time copy of a sessionEntry, safe for a
// caller to use without holding sessMu.
type sessionSnapshot struct {
	ID      uint64
	Role    string
	Path    string
	Peer    PeerId
	HasPeer bool
}

// NewManager constructs a Manager from cfg, generating key material under
// cfg's directories if absent, and a Logger at Info level that also writes
// to a file under cfg.LogDir when it is set (keeping at most 5 log files).
func NewManager(cfg Config) (*Manager, error) {
	if err := keys.EnsureGenerated(keys.Dirs{PublicDir: cfg.PublicKeyDir, PrivateDir: cfg.PrivateKeyDir}); err != nil {
		return nil, err
	}
	logger, err := logx.New(logx.Info, cfg.LogDir, 5)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	// A plain errgroup.Group, not errgroup.WithContext: the latter's
	// derived context is canceled the instant any one goroutine returns a
	// non-nil error, which would abort every other concurrent session on
	// this Manager over one unrelated transfer's failure. Only Shutdown
	// should cancel ctx; session errors are observed via each Handle, per
	// spec §7's "a single failed session" isolation requirement.
	group := &errgroup.Group{}
	return &Manager{
		Self:     NewPeerId(),
		Reg:      NewRegistry(),
		cfg:      cfg,
		log:      logger,
		group:    group,
		ctx:      ctx,
		stop:     cancel,
		sessions: make(map[uint64]*sessionEntry),
	}, nil
}

// Handle is returned by Publish/Subscribe: a join handle for the spawned
// session (spec §4.5: "returns a join handle").
type Handle struct {
	done chan error
}

// Wait blocks until the session exits, returning its terminal error (nil
// on a clean Done transition or a graceful ErrTransportClosed).
func (h *Handle) Wait() error {
	return <-h.done
}

// Publish creates a server-role socket bound to port, loads the local
// (transmitter) key pair, and launches the transmitter state machine on
// a dedicated goroutine (spec §4.5). It accepts exactly one connection,
// consistent with the Non-goal of multi-receiver fan-out.
func (m *Manager) Publish(port int, path string, updates UpdatesAvailable) (*Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrPathMissing
	}
	if _, err := keys.Load(keys.Dirs{PublicDir: m.cfg.PublicKeyDir, PrivateDir: m.cfg.PrivateKeyDir}, keys.RoleTransmitter); err != nil {
		return nil, ErrKeyMaterialMissing
	}
	if port == 0 {
		port = m.cfg.Port
	}
	ln, err := wire.Listen(port, Pipeline)
	if err != nil {
		return nil, err
	}

	h := &Handle{done: make(chan error, 1)}
	m.spawn(func(ctx context.Context) error {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close()

		tx, err := NewTransmitter(conn, m.Self, m.Reg, path, updates, m.log.Topic("TX"))
		if err != nil {
			return err
		}
		id, clear := m.trackSession("transmitter", path)
		defer clear()
		tx.OnHandshake(func(p PeerId) { m.setSessionPeer(id, p) })

		err = tx.Run(ctx)
		m.recordOutcome(path, tx.remote, err)
		return err
	}, h)
	return h, nil
}

// Subscribe creates a client-role socket, connects to ip:port, loads the
// local (receiver) key pair, sets the receive timeout, and launches the
// receiver state machine on a dedicated goroutine (spec §4.5).
// remotePublicKey is either a filesystem path or a raw hex-encoded key
// blob, per spec §4.5's "path or raw key blob" contract.
func (m *Manager) Subscribe(ip string, port int, path string, remotePublicKey string) (*Handle, error) {
	if port == 0 {
		port = m.cfg.Port
	}
	if remotePublicKey == "" {
		remotePublicKey = fmt.Sprintf("%s/tx.key", m.cfg.PublicKeyDir)
	}
	if _, err := keys.LoadPublicKey(remotePublicKey); err != nil {
		return nil, ErrKeyMaterialMissing
	}
	if _, err := keys.Load(keys.Dirs{PublicDir: m.cfg.PublicKeyDir, PrivateDir: m.cfg.PrivateKeyDir}, keys.RoleReceiver); err != nil {
		return nil, ErrKeyMaterialMissing
	}

	conn, err := wire.Dial(fmt.Sprintf("%s:%d", ip, port), Pipeline)
	if err != nil {
		return nil, err
	}

	h := &Handle{done: make(chan error, 1)}
	m.spawn(func(ctx context.Context) error {
		defer conn.Close()
		rx, err := NewReceiver(conn, m.Self, m.Reg, path, m.log.Topic("RX"))
		if err != nil {
			return err
		}
		id, clear := m.trackSession("receiver", path)
		defer clear()
		rx.OnHandshake(func(p PeerId) { m.setSessionPeer(id, p) })

		err = rx.Run(ctx)
		m.recordOutcome(path, rx.remote, err)
		return err
	}, h)
	return h, nil
}

// LocalPublicKey reads the manager's own transmitter public key file,
// failing with ErrKeyMaterialMissing if absent (spec §4.5).
func (m *Manager) LocalPublicKey() ([32]byte, error) {
	pair, err := keys.Load(keys.Dirs{PublicDir: m.cfg.PublicKeyDir, PrivateDir: m.cfg.PrivateKeyDir}, keys.RoleTransmitter)
	if err != nil {
		return [32]byte{}, ErrKeyMaterialMissing
	}
	return pair.Public, nil
}

// Shutdown destroys the manager's transport context; every outstanding
// session observes this as termination on its next I/O (spec §5).
func (m *Manager) Shutdown() {
	m.stop()
}

// spawn runs fn on a dedicated goroutine supervised by the manager's
// errgroup (spec §5: "parallel OS-level threads... each active session
// runs on exactly one worker"), forwarding its result to h without
// letting one session's error take down the process (spec §7: "the
// process itself does not exit on a single failed session").
func (m *Manager) spawn(fn func(ctx context.Context) error, h *Handle) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	m.group.Go(func() error {
		err := fn(ctx)
		if err == ErrTransportClosed {
			err = nil
		}
		h.done <- err
		return err
	})
}

func (m *Manager) recordOutcome(path string, remote PeerId, err error) {
	status := TagDONE
	if err != nil && err != ErrTransportClosed {
		status = TagERR
	}
	m.Reg.SetStatus(path, remote, status)
}

// trackSession registers an in-flight session under a fresh id and
// returns a cleanup func that removes it. Called once per Publish/
// Subscribe goroutine, for the status endpoint's active-session view
// (spec_full.md §4.5).
func (m *Manager) trackSession(role, path string) (id uint64, clear func()) {
	m.sessMu.Lock()
	id = m.nextSessID
	m.nextSessID++
	m.sessions[id] = &sessionEntry{role: role, path: path}
	m.sessMu.Unlock()
	return id, func() {
		m.sessMu.Lock()
		delete(m.sessions, id)
		m.sessMu.Unlock()
	}
}

// setSessionPeer fills in the remote peer id for a tracked session once
// its handshake completes. A no-op if the session has already been
// cleared (e.g. the handshake callback racing session teardown).
func (m *Manager) setSessionPeer(id uint64, peer PeerId) {
	m.sessMu.Lock()
	if e, ok := m.sessions[id]; ok {
		e.peer = peer
		e.hasPeer = true
	}
	m.sessMu.Unlock()
}

// activeSessions returns a snapshot of every currently tracked session,
// consumed by the status adapter in manager_status.go.
func (m *Manager) activeSessions() []sessionSnapshot {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()
	out := make([]sessionSnapshot, 0, len(m.sessions))
	for id, e := range m.sessions {
		out = append(out, sessionSnapshot{ID: id, Role: e.role, Path: e.path, Peer: e.peer, HasPeer: e.hasPeer})
	}
	return out
}
