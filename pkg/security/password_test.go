package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/snas/pkg/secure"
)

func TestHashPassword_ProducesExpectedFormat(t *testing.T) {
	encoded, err := HashPassword(secure.NewString("hunter2"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "argon2id$v="))
	assert.Equal(t, 5, len(strings.Split(encoded, "$")))
}

func TestHashPassword_SaltsDifferently(t *testing.T) {
	a, err := HashPassword(secure.NewString("hunter2"))
	require.NoError(t, err)
	b, err := HashPassword(secure.NewString("hunter2"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_CorrectPassword(t *testing.T) {
	encoded, err := HashPassword(secure.NewString("correct horse battery staple"))
	require.NoError(t, err)

	ok, err := VerifyPassword(secure.NewString("correct horse battery staple"), encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	encoded, err := HashPassword(secure.NewString("correct horse battery staple"))
	require.NoError(t, err)

	ok, err := VerifyPassword(secure.NewString("wrong password"), encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	_, err := VerifyPassword(secure.NewString("anything"), "not-a-real-hash")
	assert.Error(t, err)
}
