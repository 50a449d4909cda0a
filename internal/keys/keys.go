// Package keys manages the curve25519 key material spec.md §6 persists
// under public_keys/ and private_keys/: generation, filesystem layout,
// and loading. It stands in for the curve-based authentication surface
// spec.md §1 scopes out of the transport proper but §4.5 assigns to the
// manager (loading the local certificate's public/secret pair, and
// accepting a remote public key as either a path or a raw blob).
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/box"
)

// Pair is a curve25519 public/secret keypair, the unit spec.md calls a
// "certificate" (tx.key/tx.key_secret or rx.key/rx.key_secret).
type Pair struct {
	Public [32]byte
	Secret [32]byte
}

// Role names the two per-process roles that each get their own keypair
// (spec §6: tx.key, tx.key_secret, rx.key, rx.key_secret).
type Role string

const (
	RoleTransmitter Role = "tx"
	RoleReceiver    Role = "rx"
)

// Generate creates a fresh curve25519 keypair.
func Generate() (Pair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Public: *pub, Secret: *sec}, nil
}

// Dirs is the on-disk layout spec §6 names: a public_keys/ directory and a
// private_keys/ directory, each holding per-role key files.
type Dirs struct {
	PublicDir  string
	PrivateDir string
}

func publicPath(d Dirs, role Role) string  { return filepath.Join(d.PublicDir, string(role)+".key") }
func secretPath(d Dirs, role Role) string  { return filepath.Join(d.PrivateDir, string(role)+".key_secret") }

// EnsureGenerated creates keypairs for both roles under d if they don't
// already exist. It never overwrites existing key files — generation is a
// one-time setup step, never mutated by the protocol (spec §6).
func EnsureGenerated(d Dirs) error {
	for _, role := range []Role{RoleTransmitter, RoleReceiver} {
		if _, err := os.Stat(publicPath(d, role)); err == nil {
			continue
		}
		pair, err := Generate()
		if err != nil {
			return err
		}
		if err := Persist(d, role, pair); err != nil {
			return err
		}
	}
	return nil
}

// Persist writes pair's public/secret halves to their role-named files
// under d, creating the directories if needed.
func Persist(d Dirs, role Role, pair Pair) error {
	if err := os.MkdirAll(d.PublicDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(d.PrivateDir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(publicPath(d, role), []byte(hex.EncodeToString(pair.Public[:])), 0o644); err != nil {
		return err
	}
	return os.WriteFile(secretPath(d, role), []byte(hex.EncodeToString(pair.Secret[:])), 0o600)
}

// Load reads role's keypair from d. Returns a wrapped os.ErrNotExist-style
// error (checked by the manager and surfaced as ErrKeyMaterialMissing) if
// either half is absent.
func Load(d Dirs, role Role) (Pair, error) {
	pubHex, err := os.ReadFile(publicPath(d, role))
	if err != nil {
		return Pair{}, err
	}
	secHex, err := os.ReadFile(secretPath(d, role))
	if err != nil {
		return Pair{}, err
	}
	var pair Pair
	pubBytes, err := hex.DecodeString(string(pubHex))
	if err != nil || len(pubBytes) != 32 {
		return Pair{}, errInvalidKey(publicPath(d, role))
	}
	copy(pair.Public[:], pubBytes)
	secBytes, err := hex.DecodeString(string(secHex))
	if err != nil || len(secBytes) != 32 {
		return Pair{}, errInvalidKey(secretPath(d, role))
	}
	copy(pair.Secret[:], secBytes)
	return pair, nil
}

// LoadPublicKey reads just a public half, either from a file path (when
// keyOrPath names an existing file) or decoded directly from a raw
// hex-encoded blob, matching the manager's "path or raw key blob"
// contract (spec §4.5) for a subscriber-supplied remote public key.
func LoadPublicKey(keyOrPath string) ([32]byte, error) {
	var out [32]byte
	if data, err := os.ReadFile(keyOrPath); err == nil {
		b, err := hex.DecodeString(string(data))
		if err != nil || len(b) != 32 {
			return out, errInvalidKey(keyOrPath)
		}
		copy(out[:], b)
		return out, nil
	}
	b, err := hex.DecodeString(keyOrPath)
	if err != nil || len(b) != 32 {
		return out, errInvalidKey("<raw key>")
	}
	copy(out[:], b)
	return out, nil
}

type invalidKeyError struct{ path string }

func (e *invalidKeyError) Error() string { return "keys: invalid key material at " + e.path }

func errInvalidKey(path string) error { return &invalidKeyError{path: path} }
