package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *SophonHashCache {
	t.Helper()
	cache, err := OpenHashCache(filepath.Join(t.TempDir(), "cache", "hashes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestHashCacheRemembersVerifiedFiles(t *testing.T) {
	cache := openTestCache(t)
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0644))

	ok, err := cache.CheckFile(path, 6, md5Hex("abcdef"))
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	sum, found := cache.Lookup(path, info)
	require.True(t, found)
	assert.Equal(t, md5Hex("abcdef"), sum)

	ok, err = cache.CheckFile(path, 6, md5Hex("other!"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCacheMissesAfterChange(t *testing.T) {
	cache := openTestCache(t)
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0644))
	require.NoError(t, cache.Store(path, md5Hex("abcdef")))

	require.NoError(t, os.WriteFile(path, []byte("abcdeX"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	info, err := os.Stat(path)
	require.NoError(t, err)
	_, found := cache.Lookup(path, info)
	assert.False(t, found)

	ok, err := cache.CheckFile(path, 6, md5Hex("abcdef"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCacheForget(t *testing.T) {
	cache := openTestCache(t)
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))
	require.NoError(t, cache.Store(path, md5Hex("abc")))

	require.NoError(t, cache.Forget(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	_, found := cache.Lookup(path, info)
	assert.False(t, found)
}

func TestNilHashCache(t *testing.T) {
	var cache *SophonHashCache
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	ok, err := cache.CheckFile(path, 3, md5Hex("abc"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, cache.Store(path, "x"))
	assert.NoError(t, cache.Forget(path))
	assert.NoError(t, cache.Close())
}
