package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("supersecret1")
	assert.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "supersecret1"))
	assert.Error(t, ComparePassword(hash, "wrong"))

	_, err = HashPassword("")
	assert.Error(t, err)

	_, err = HashPassword(strings.Repeat("a", maxPasswordBytes+1))
	assert.Error(t, err, "input past the bcrypt limit must not be silently truncated")

	atLimit, err := HashPassword(strings.Repeat("a", maxPasswordBytes))
	assert.NoError(t, err)
	assert.NoError(t, ComparePassword(atLimit, strings.Repeat("a", maxPasswordBytes)))
}
