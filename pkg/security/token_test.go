package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateResetToken_Length(t *testing.T) {
	tok, err := GenerateResetToken()
	require.NoError(t, err)
	assert.Len(t, tok, tokenLength)
}

func TestGenerateResetToken_Unique(t *testing.T) {
	a, err := GenerateResetToken()
	require.NoError(t, err)
	b, err := GenerateResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateResetToken_AlphabetOnly(t *testing.T) {
	tok, err := GenerateResetToken()
	require.NoError(t, err)
	for _, r := range tok {
		assert.Contains(t, tokenAlphabet, string(r))
	}
}
