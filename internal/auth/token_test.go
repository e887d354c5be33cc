package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("secret", time.Hour)

	token, err := svc.Issue("user-1", true)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.IsGuest)
	assert.Equal(t, "user-1", claims.Subject)

	assert.NoError(t, svc.ValidateFor(token, "user-1"))
	assert.ErrorIs(t, svc.ValidateFor(token, "user-2"), ErrTokenInvalid)
}

func TestValidate_Expired(t *testing.T) {
	svc := NewService("secret", -time.Minute)

	token, err := svc.Issue("user-1", true)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidate_WrongSecret(t *testing.T) {
	token, err := NewService("secret", time.Hour).Issue("user-1", true)
	require.NoError(t, err)

	_, err = NewService("other", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = NewService("secret", time.Hour).Validate("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
