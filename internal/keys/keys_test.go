package keys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDirs(t *testing.T) Dirs {
	t.Helper()
	base := t.TempDir()
	return Dirs{PublicDir: filepath.Join(base, "public_keys"), PrivateDir: filepath.Join(base, "private_keys")}
}

func TestGeneratePersistLoadRoundTrip(t *testing.T) {
	d := testDirs(t)
	pair, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Persist(d, RoleTransmitter, pair))

	got, err := Load(d, RoleTransmitter)
	require.NoError(t, err)
	require.Equal(t, pair, got)
}

func TestEnsureGeneratedCreatesBothRolesOnce(t *testing.T) {
	d := testDirs(t)
	require.NoError(t, EnsureGenerated(d))

	tx, err := Load(d, RoleTransmitter)
	require.NoError(t, err)
	rx, err := Load(d, RoleReceiver)
	require.NoError(t, err)
	require.NotEqual(t, tx, rx)

	// A second call must not regenerate (and so must not change) existing keys.
	require.NoError(t, EnsureGenerated(d))
	tx2, err := Load(d, RoleTransmitter)
	require.NoError(t, err)
	require.Equal(t, tx, tx2)
}

func TestLoadMissingKeyFails(t *testing.T) {
	d := testDirs(t)
	_, err := Load(d, RoleTransmitter)
	require.Error(t, err)
}

func TestLoadPublicKeyFromFile(t *testing.T) {
	d := testDirs(t)
	pair, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Persist(d, RoleTransmitter, pair))

	got, err := LoadPublicKey(publicPath(d, RoleTransmitter))
	require.NoError(t, err)
	require.Equal(t, pair.Public, got)
}

func TestLoadPublicKeyFromRawHex(t *testing.T) {
	pair, err := Generate()
	require.NoError(t, err)
	hexKey := rawHex(pair.Public)

	got, err := LoadPublicKey(hexKey)
	require.NoError(t, err)
	require.Equal(t, pair.Public, got)
}

func TestLoadPublicKeyRejectsGarbage(t *testing.T) {
	_, err := LoadPublicKey("not-a-valid-key-or-path")
	require.Error(t, err)
}

func rawHex(b [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
