package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCapabilityRepository_Merge(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCapabilityRepository()

	caps, err := repo.Get(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Nil(t, caps)

	caps, err = repo.Merge(ctx, "https://a.example", []types.Capability{types.CapSignTransaction, types.CapAccessAddress})
	require.NoError(t, err)
	assert.Equal(t, []types.Capability{types.CapAccessAddress, types.CapSignTransaction}, caps)

	caps, err = repo.Merge(ctx, "https://a.example", []types.Capability{types.CapAccessAddress, types.CapAccessAllAddresses})
	require.NoError(t, err)
	assert.Equal(t, []types.Capability{
		types.CapAccessAddress,
		types.CapAccessAllAddresses,
		types.CapSignTransaction,
	}, caps)

	t.Run("returned slice is a copy", func(t *testing.T) {
		got, err := repo.Get(ctx, "https://a.example")
		require.NoError(t, err)
		got[0] = "MUTATED"

		again, err := repo.Get(ctx, "https://a.example")
		require.NoError(t, err)
		assert.Equal(t, types.CapAccessAddress, again[0])
	})
}

func TestMemoryCapabilityRepository_ConcurrentMergeKeepsUnion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCapabilityRepository()

	var wg sync.WaitGroup
	for _, c := range types.AllCapabilities() {
		wg.Add(1)
		go func(c types.Capability) {
			defer wg.Done()
			_, err := repo.Merge(ctx, "https://race.example", []types.Capability{c})
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	caps, err := repo.Get(ctx, "https://race.example")
	require.NoError(t, err)
	assert.ElementsMatch(t, types.AllCapabilities(), caps)
}

func TestMemoryCapabilityRepository_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCapabilityRepository()

	_, err := repo.Merge(ctx, "https://b.example", []types.Capability{types.CapAccessAddress})
	require.NoError(t, err)
	_, err = repo.Merge(ctx, "https://a.example", []types.Capability{types.CapSignTransaction})
	require.NoError(t, err)

	grants, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "https://a.example", grants[0].Origin)

	require.NoError(t, repo.Delete(ctx, "https://a.example"))
	caps, err := repo.Get(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestMemoryBlockListRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBlockListRepository()

	ok, err := repo.Contains(ctx, "https://evil.example")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Add(ctx, "https://evil.example"))
	require.NoError(t, repo.Add(ctx, "https://evil.example"))

	ok, err = repo.Contains(ctx, "https://evil.example")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, repo.Remove(ctx, "https://evil.example"))
	ok, err = repo.Contains(ctx, "https://evil.example")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryActivityRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryActivityRepository()

	for i := 0; i < 5; i++ {
		origin := "https://a.example"
		if i%2 == 1 {
			origin = "https://b.example"
		}
		ev := &types.ActivityEvent{Kind: types.KindConnect, Origin: origin, URL: fmt.Sprintf("%s/p/%d", origin, i)}
		require.NoError(t, repo.Append(ctx, ev))
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}

	tests := []struct {
		name  string
		query ActivityQuery
		urls  []string
	}{
		{
			name:  "all oldest first",
			query: ActivityQuery{},
			urls: []string{
				"https://a.example/p/0",
				"https://b.example/p/1",
				"https://a.example/p/2",
				"https://b.example/p/3",
				"https://a.example/p/4",
			},
		},
		{
			name:  "by origin",
			query: ActivityQuery{Origin: "https://b.example"},
			urls:  []string{"https://b.example/p/1", "https://b.example/p/3"},
		},
		{
			name:  "limit",
			query: ActivityQuery{Origin: "https://a.example", Limit: 2},
			urls:  []string{"https://a.example/p/0", "https://a.example/p/2"},
		},
		{
			name:  "by kind with no match",
			query: ActivityQuery{Kind: types.KindSignTransaction},
			urls:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.List(ctx, tt.query)
			require.NoError(t, err)

			var urls []string
			for _, e := range events {
				urls = append(urls, e.URL)
			}
			assert.Equal(t, tt.urls, urls)
		})
	}
}

func TestMemoryKeyfileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryKeyfileRepository()

	_, err := repo.Get(ctx, "0xabc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Put(ctx, &types.KeyfileRecord{Address: "0xabc", SealedBlob: []byte("one"), Provider: "local"}))
	require.NoError(t, repo.Put(ctx, &types.KeyfileRecord{Address: "0xdef", SealedBlob: []byte("two"), Provider: "local"}))
	require.NoError(t, repo.Put(ctx, &types.KeyfileRecord{Address: "0xabc", SealedBlob: []byte("three"), Provider: "local"}))

	rec, err := repo.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), rec.SealedBlob)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0xabc", list[0].Address)
	assert.Equal(t, "0xdef", list[1].Address)

	require.NoError(t, repo.Delete(ctx, "0xabc"))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "0xdef", list[0].Address)
}

func TestMemoryProfileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProfileRepository()

	addr, err := repo.ActiveAddress(ctx)
	require.NoError(t, err)
	assert.Empty(t, addr)

	require.NoError(t, repo.SetActiveAddress(ctx, "0xabc"))
	addr, err = repo.ActiveAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", addr)
}
