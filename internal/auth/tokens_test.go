package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token := NewToken(18)
		assert.False(t, seen[token], "tokens must not repeat")
		seen[token] = true

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err, "tokens must be URL-safe base64")
		assert.Len(t, raw, 18)
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("abc")
	h2 := HashToken("abc")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashToken("abd"))
}

func TestSecretHashing(t *testing.T) {
	hash, err := HashSecret("swordfish")
	require.NoError(t, err)
	assert.NotEqual(t, "swordfish", hash)

	assert.True(t, VerifySecret("swordfish", hash))
	assert.False(t, VerifySecret("tuna", hash))
	assert.False(t, VerifySecret("swordfish", "not-a-bcrypt-hash"))

	// Equal inputs still produce distinct hashes through the salt.
	again, err := HashSecret("swordfish")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}
