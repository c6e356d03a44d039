package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestParseUserID(t *testing.T) {
	secret := []byte("s3cret")
	tok := sign(t, jwt.MapClaims{"user_id": "u-1", "typ": "access", "exp": time.Now().Add(time.Hour).Unix()}, secret)

	id, err := ParseUserID(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)
}

func TestParseUserID_Rejects(t *testing.T) {
	secret := []byte("s3cret")

	refresh := sign(t, jwt.MapClaims{"user_id": "u-1", "typ": "refresh"}, secret)
	_, err := ParseUserID(refresh, secret)
	assert.Error(t, err)

	expired := sign(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}, secret)
	_, err = ParseUserID(expired, secret)
	assert.Error(t, err)

	other := sign(t, jwt.MapClaims{"user_id": "u-1"}, []byte("other"))
	_, err = ParseUserID(other, secret)
	assert.Error(t, err)

	_, err = ParseUserID(other, nil)
	assert.Error(t, err)
}
