package application

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testArgon2idParams = Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

func TestPasswordHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher(testArgon2idParams)

	encoded, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"))

	require.NoError(t, hasher.Verify(encoded, "correct horse"))
	assert.True(t, errors.Is(hasher.Verify(encoded, "wrong horse"), ErrInvalidCredentials))

	again, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salts must differ")
}

func TestPasswordHasher_RejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher(testArgon2idParams)

	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5",
	} {
		assert.ErrorIs(t, hasher.Verify(encoded, "secret"), ErrInvalidPasswordHash, "hash %q", encoded)
	}
	assert.ErrorIs(t, hasher.Verify("$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5", "secret"), ErrIncompatiblePasswordVersion)
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	assert.True(t, validatePassword("   ").HasErrors())
	assert.True(t, validatePassword("short").HasErrors())
	assert.True(t, validatePassword(strings.Repeat("a", maxPasswordLength+1)).HasErrors())
	assert.False(t, validatePassword("long enough").HasErrors())
}
