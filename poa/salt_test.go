package poa

import (
	"testing"

	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
)

func TestGenerateSalt(t *testing.T) {
	first, err := GenerateSalt("abcd1234")
	require.NoError(t, err)
	assert.Equal(t, 64, len(first))

	second, err := GenerateSalt("abcd1234")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "salts must not repeat for the same block hash")

	empty, err := GenerateSalt("")
	require.NoError(t, err)
	assert.Equal(t, 64, len(empty))
}
