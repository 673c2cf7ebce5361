package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHashAndCompare(t *testing.T) {
	hash, err := GetHash("secretpassword")
	require.NoError(t, err)
	require.NotEqual(t, "secretpassword", hash)

	assert.NoError(t, CompareHash(hash, "secretpassword"))
	assert.Error(t, CompareHash(hash, "wrongpassword"))
}

func TestGetHash_DifferentSalts(t *testing.T) {
	first, err := GetHash("secretpassword")
	require.NoError(t, err)
	second, err := GetHash("secretpassword")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
