package user

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTempPassword(t *testing.T) {
	counts := make(map[rune]int)
	const n = 2000
	for i := 0; i < n; i++ {
		pwd, err := GenerateTempPassword(8)
		require.NoError(t, err)
		require.Len(t, pwd, 8)
		for _, c := range pwd {
			require.True(t, strings.ContainsRune(tempPasswordAlphabet, c), "unexpected char %q", c)
			counts[c]++
		}
	}

	// 16000 draws over 62 symbols: every symbol shows up, none dominates
	assert.Len(t, counts, len(tempPasswordAlphabet))
	expected := float64(n*8) / float64(len(tempPasswordAlphabet))
	for c, cnt := range counts {
		assert.InDelta(t, expected, float64(cnt), expected*0.5, "char %q", c)
	}
}

func TestGenerateResetToken(t *testing.T) {
	token, hash, err := GenerateResetToken()
	require.NoError(t, err)
	assert.Len(t, token, resetTokenBytes*2)
	assert.Equal(t, HashResetToken(token), hash)
	assert.NotEqual(t, token, hash)

	other, _, err := GenerateResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
