package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateGuestAndAuthenticate(t *testing.T) {
	svc, _, _, _, _, _ := setupService(t)

	guest, token, err := svc.CreateGuest("Maya", "#ff8800")
	assert.NoError(t, err)
	assert.NotEmpty(t, guest.Id)
	assert.NotEmpty(t, token)
	assert.True(t, guest.Guest)

	got, err := svc.AuthenticateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, guest.Id, got.Id)
	assert.Equal(t, "Maya", got.Name)
	assert.Equal(t, "#ff8800", got.Color)
	assert.True(t, got.Guest)
}

func TestAuthenticateToken_Invalid(t *testing.T) {
	svc, _, _, _, _, _ := setupService(t)

	_, err := svc.AuthenticateToken("invalid.token.string")
	assert.Error(t, err)
}

func TestAuthenticateToken_Empty(t *testing.T) {
	svc, _, _, _, _, _ := setupService(t)

	_, err := svc.AuthenticateToken("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "token not provided")
}

func TestAuthenticateToken_WrongSecret(t *testing.T) {
	svc, _, _, _, _, _ := setupService(t)
	other, _, _, _, _, _ := setupService(t)
	other.JWTSecret = []byte("another-secret")

	_, token, err := other.CreateGuest("Intruder", "#000000")
	assert.NoError(t, err)

	_, err = svc.AuthenticateToken(token)
	assert.Error(t, err)
}
