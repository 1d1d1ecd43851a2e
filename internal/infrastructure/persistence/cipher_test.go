package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXChaCha20Cipher(t *testing.T) {
	c := testCipher(t)
	aad := []byte("row-1")

	sealed, err := c.Seal([]byte(`{"access_token":"tok"}`), aad)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		plain, err := c.Open(sealed, aad)
		require.NoError(t, err)
		assert.Equal(t, `{"access_token":"tok"}`, string(plain))
	})

	t.Run("nonce differs per seal", func(t *testing.T) {
		again, err := c.Seal([]byte(`{"access_token":"tok"}`), aad)
		require.NoError(t, err)
		assert.NotEqual(t, sealed, again)
	})

	t.Run("bound to associated data", func(t *testing.T) {
		_, err := c.Open(sealed, []byte("row-2"))
		assert.Error(t, err)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := c.Open(tampered, aad)
		assert.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := c.Open(sealed[:10], aad)
		assert.ErrorIs(t, err, ErrCiphertextTooShort)
	})

	t.Run("same secret derives same key", func(t *testing.T) {
		plain, err := testCipher(t).Open(sealed, aad)
		require.NoError(t, err)
		assert.NotEmpty(t, plain)
	})
}
