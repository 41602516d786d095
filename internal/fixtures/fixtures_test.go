package fixtures

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	f, err := Generate(17, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(17), f.Tree.Size)
	require.Len(t, f.Leaves, 17)
	require.NoError(t, Verify(f))
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(9, 1)
	require.NoError(t, err)
	b, err := Generate(9, 1)
	require.NoError(t, err)
	require.True(t, a.Tree.Root.Equal(&b.Tree.Root))

	c, err := Generate(9, 2)
	require.NoError(t, err)
	require.False(t, a.Tree.Root.Equal(&c.Tree.Root))
}

func TestFileRoundTrip(t *testing.T) {
	f, err := Generate(5, 7)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, WriteFile(path, f))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, f.Tree.Size, loaded.Tree.Size)
	require.True(t, f.Tree.Root.Equal(&loaded.Tree.Root))
	require.NoError(t, Verify(loaded))
}

func TestGenerateRejectsEmpty(t *testing.T) {
	_, err := Generate(0, 1)
	require.Error(t, err)
}
