package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortedGenerations(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"3.log", "1.log", "2.log", "not-a-log.txt", "abc.log", "10.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "5.log"), 0o755))

	gens, err := sortedGenerations(dir)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 10}, gens)
}

func TestSegmentPath(t *testing.T) {
	require.Equal(t, filepath.Join("store", "7.log"), segmentPath("store", 7))
}
