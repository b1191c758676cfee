package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHashCache(t *testing.T, capacity int, ttl time.Duration) *HashCacheService {
	t.Helper()
	s, err := NewHashCacheService(testDB(t), capacity, ttl, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHashCacheRecordAndLookup(t *testing.T) {
	cache := newTestHashCache(t, 10, time.Hour)

	cache.Record("abc123", "sunset.jpg", "wallpaper/desktop/风景/sunset.jpg")

	// 落盘去抖期间查询必须立即可见
	entry := cache.Lookup("abc123")
	require.NotNil(t, entry)
	assert.Equal(t, "sunset.jpg", entry.Filename)
	assert.Equal(t, "wallpaper/desktop/风景/sunset.jpg", entry.Path)

	assert.Nil(t, cache.Lookup("missing"))
}

func TestHashCacheLazyExpiry(t *testing.T) {
	cache := newTestHashCache(t, 10, 30*time.Millisecond)

	cache.Record("old", "a.jpg", "wallpaper/desktop/风景/a.jpg")
	require.NotNil(t, cache.Lookup("old"))

	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, cache.Lookup("old"), "过期条目应视为不存在")
}

func TestHashCacheCapacityEviction(t *testing.T) {
	cache := newTestHashCache(t, 3, time.Hour)

	for i := 0; i < 4; i++ {
		cache.Record(fmt.Sprintf("digest-%d", i), fmt.Sprintf("f%d.jpg", i), "wallpaper/desktop/风景/f.jpg")
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 3, cache.Count())
	assert.Nil(t, cache.Lookup("digest-0"), "应淘汰时间最早的条目")
	assert.NotNil(t, cache.Lookup("digest-1"))
	assert.NotNil(t, cache.Lookup("digest-3"))
}

func TestHashCachePurgeExpired(t *testing.T) {
	cache := newTestHashCache(t, 10, 30*time.Millisecond)

	cache.Record("d1", "a.jpg", "p/a.jpg")
	cache.Record("d2", "b.jpg", "p/b.jpg")
	time.Sleep(50 * time.Millisecond)
	cache.Record("d3", "c.jpg", "p/c.jpg")

	assert.Equal(t, 2, cache.PurgeExpired())
	assert.Equal(t, 1, cache.Count())
	assert.NotNil(t, cache.Lookup("d3"))
}

func TestHashCachePersistence(t *testing.T) {
	db := testDB(t)

	first, err := NewHashCacheService(db, 10, time.Hour, testLogger())
	require.NoError(t, err)
	first.Record("persist-me", "a.jpg", "wallpaper/mobile/插画/a.jpg")
	require.NoError(t, first.Close())

	// 重新加载后条目仍然可见
	second, err := NewHashCacheService(db, 10, time.Hour, testLogger())
	require.NoError(t, err)
	defer second.Close()

	entry := second.Lookup("persist-me")
	require.NotNil(t, entry)
	assert.Equal(t, "a.jpg", entry.Filename)
}

func TestHashCacheClear(t *testing.T) {
	cache := newTestHashCache(t, 10, time.Hour)

	cache.Record("d1", "a.jpg", "p/a.jpg")
	require.NoError(t, cache.Clear())

	assert.Equal(t, 0, cache.Count())
	assert.Nil(t, cache.Lookup("d1"))
}
