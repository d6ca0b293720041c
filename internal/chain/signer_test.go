package chain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "oracle.pem")
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewSignerFromFile_EmptyPathDisabled(t *testing.T) {
	s, err := NewSignerFromFile("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestNewSignerFromFile_SignsPayload(t *testing.T) {
	path := writeTestKey(t)
	s, err := NewSignerFromFile(path)
	require.NoError(t, err)
	require.True(t, s.Enabled())

	sig, err := s.Sign([]byte("cycle-7-matches"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, "0x", sig[:2])
}
