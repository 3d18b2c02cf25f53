package apikey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringValidate(t *testing.T) {
	raw, digest, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, HashKey(raw), digest)

	ring, err := NewKeyring([]string{HashKey("other"), " " + digest + " ", ""})
	require.NoError(t, err)
	assert.False(t, ring.Empty())

	info, err := ring.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, digest[:8], info.ID)

	_, err = ring.Validate("guess")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ring.Validate("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewKeyringRejectsRawKeys(t *testing.T) {
	_, err := NewKeyring([]string{"not-a-digest"})
	assert.Error(t, err)
	_, err = NewKeyring([]string{"abcd"})
	assert.Error(t, err)
}

func TestEmptyKeyring(t *testing.T) {
	ring, err := NewKeyring(nil)
	require.NoError(t, err)
	assert.True(t, ring.Empty())
	_, err = ring.Validate("anything")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
