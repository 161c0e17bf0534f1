package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := [20]byte{}
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	encoded := FormatAddress(raw)
	require.True(t, strings.HasPrefix(encoded, "mkt1"), encoded)

	decoded, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestParseAddressAcceptsHex(t *testing.T) {
	got, err := ParseAddress("0x0101010101010101010101010101010101010101")
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x01}, 20), got[:])
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	foreign := NewAddress("cosmos", bytes.Repeat([]byte{0x02}, 20)).String()
	_, err := ParseAddress(foreign)
	require.Error(t, err)

	_, err = ParseAddress("")
	require.Error(t, err)
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	a := DeriveAddress("marketplace/custody")
	b := DeriveAddress("marketplace/custody")
	c := DeriveAddress("marketplace/other")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "caller.json")
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), loaded.PubKey().Address().String())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
