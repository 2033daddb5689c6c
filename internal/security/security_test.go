package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("secret123", fastParams)
	require.NoError(t, err)
	assert.Contains(t, string(hash), "$argon2id$v=19$t=1,m=8192,p=1$")

	ok, err := VerifyPassword("secret123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, hash := range []string{"", "plain", "$bcrypt$v=19$t=1,m=1,p=1$aa$bb", "$argon2id$v=18$t=1,m=1,p=1$aa$bb"} {
		_, err := VerifyPassword("x", []byte(hash))
		assert.ErrorIs(t, err, ErrMalformedHash, hash)
	}
}

func TestAccessToken(t *testing.T) {
	tok, err := GenerateAccessToken("s3cret", "u1", "sess1", "dev1", "user", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.ExpiresAt, 2*time.Second)

	claims, err := ParseAccessToken(tok.Token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "sess1", claims.SessionID)
	assert.Equal(t, "dev1", claims.DeviceID)
	assert.Equal(t, "user", claims.Role)

	_, err = ParseAccessToken(tok.Token, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessToken_Expired(t *testing.T) {
	tok, err := GenerateAccessToken("s3cret", "u1", "sess1", "dev1", "user", -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(tok.Token, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	token, hash, err := GenerateRefreshToken(0)
	require.NoError(t, err)
	assert.Len(t, token, 86)
	assert.Equal(t, hash, HashRefreshToken(token))
}

func TestResourceSignature(t *testing.T) {
	sig := SignResource("k", "diag1", "2026/01/01/diag1.jpeg")
	assert.True(t, VerifyResource("k", sig, "diag1", "2026/01/01/diag1.jpeg"))
	assert.False(t, VerifyResource("k", sig, "diag2", "2026/01/01/diag1.jpeg"))
}
