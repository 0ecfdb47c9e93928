package permissions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockList_IsBlocked(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryBlockListRepository()
	require.NoError(t, repo.Add(ctx, "https://evil.example"))
	require.NoError(t, repo.Add(ctx, "https://mixed.example/only/this?page=1"))

	list := NewBlockList(repo)

	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"origin entry matches deep path", "https://evil.example/a/b?c=d", true},
		{"origin entry matches upper case host", "HTTPS://EVIL.EXAMPLE:443/", true},
		{"raw entry matches verbatim", "https://mixed.example/only/this?page=1", true},
		{"raw entry does not cover other paths", "https://mixed.example/other", false},
		{"unrelated origin", "https://good.example", false},
		{"unparseable address", "::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := list.IsBlocked(ctx, tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlockList_BlockStoresCanonicalOrigin(t *testing.T) {
	ctx := context.Background()
	list := NewBlockList(storage.NewMemoryBlockListRepository())

	stored, err := list.Block(ctx, "https://Evil.Example/path")
	require.NoError(t, err)
	assert.Equal(t, "https://evil.example", stored)

	blocked, err := list.IsBlocked(ctx, "https://evil.example/other")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, list.Unblock(ctx, "https://evil.example/path"))
	blocked, err = list.IsBlocked(ctx, "https://evil.example/other")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlockList_LoadBlockList(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocked.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocked:\n  - https://phish.example\n  - http://localhost:8080/admin\n"), 0o600))

	list := NewBlockList(storage.NewMemoryBlockListRepository())
	n, err := list.LoadBlockList(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := list.List(ctx)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Entry)
	}
	assert.Equal(t, []string{"http://localhost:8080", "https://phish.example"}, got)

	t.Run("missing file", func(t *testing.T) {
		_, err := list.LoadBlockList(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("blocked: [unterminated"), 0o600))
		_, err := list.LoadBlockList(ctx, bad)
		assert.Error(t, err)
	})
}
