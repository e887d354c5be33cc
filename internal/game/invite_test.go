package game

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateInviteCode(6)
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestUniqueInviteCode(t *testing.T) {
	calls := 0
	code, err := uniqueInviteCode(6, func(string) bool {
		calls++
		return calls < 3
	})
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, 3, calls)

	_, err = uniqueInviteCode(6, func(string) bool { return true })
	assert.Error(t, err)
}

func TestNormalizeInviteCode(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeInviteCode("  ab12cd \n"))
}
