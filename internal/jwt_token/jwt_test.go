package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var account = domain.MustAddress("0x00000000000000000000000000000000000000E1")
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, account.String(), claims.Account)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func Test_ValidateToken_WrongKeyRejected(t *testing.T) {
	other := NewJWTService("other-signing-key", "test-issuer", "test-audience")
	token, err := other.GenerateAccessToken(account, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ExtractAccountFromToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, expiresIn)
	require.NoError(t, err)

	got, err := jwtService.ExtractAccountFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, account, got)
}
