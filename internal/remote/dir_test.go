package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	store := NewDirStore(root)
	ctx := context.Background()

	require.NoError(t, store.EnsureDir(ctx, "league_pdfs/roto-rooters-trios"))
	require.NoError(t, store.Upload(ctx, "league_pdfs/roto-rooters-trios", "latest.pdf", []byte("old")))
	require.NoError(t, store.Upload(ctx, "league_pdfs/roto-rooters-trios", "latest.pdf", []byte("new")))

	data, err := store.Download(ctx, "league_pdfs/roto-rooters-trios", "latest.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), data)

	entries, err := os.ReadDir(filepath.Join(root, "league_pdfs", "roto-rooters-trios"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = store.Download(ctx, "league_pdfs/roto-rooters-trios", "standings_2024-10-02.pdf")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitDir(t *testing.T) {
	require.Equal(t, []string{"league_pdfs", "weds-mixers"}, splitDir("/league_pdfs//weds-mixers/"))
	require.Nil(t, splitDir(""))
	require.Nil(t, splitDir("./"))
}
