package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("grillmaster")
	require.NoError(t, err)
	assert.NotEqual(t, "grillmaster", hash)

	assert.True(t, CheckPassword(hash, "grillmaster"))
	assert.False(t, CheckPassword(hash, "grillmastor"))
	assert.False(t, CheckPassword("not-a-hash", "grillmaster"))
}

func TestNewAPIKey(t *testing.T) {
	key1, err := NewAPIKey()
	require.NoError(t, err)
	key2, err := NewAPIKey()
	require.NoError(t, err)

	assert.Len(t, key1, 64)
	assert.NotEqual(t, key1, key2)
}

func TestNewDeviceID(t *testing.T) {
	id, err := NewDeviceID()
	require.NoError(t, err)

	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "CCT", parts[0])
	assert.Len(t, parts[1], 4)
	assert.Len(t, parts[2], 4)
	for _, ch := range parts[1] + parts[2] {
		assert.Contains(t, deviceIDAlphabet, string(ch))
	}
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := IssueToken(secret, "pitboss", time.Minute)
	require.NoError(t, err)

	subject, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "pitboss", subject)
}

func TestParseToken_Invalid(t *testing.T) {
	secret := []byte("test-secret")

	token, err := IssueToken(secret, "pitboss", time.Minute)
	require.NoError(t, err)

	// wrong secret
	_, err = ParseToken([]byte("other-secret"), token)
	assert.Error(t, err)

	// garbage
	_, err = ParseToken(secret, "not.a.token")
	assert.Error(t, err)

	// expired
	expired, err := IssueToken(secret, "pitboss", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.Error(t, err)
}
