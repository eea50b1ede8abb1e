package league

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMottoCacheSingleLookup(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.RequestRefresh("180"))
	require.Len(t, queue.submitted, 1)
	assert.Equal(t, JobTeamQuery, queue.submitted[0].Kind)
	assert.Equal(t, "teamName", queue.submitted[0].Payload.Get("query"))
	assert.Equal(t, "180", queue.submitted[0].Payload.Get("bzid"))

	cache.OnComplete(queue.submitted[0], []byte(`{"bzid":"180","id":7,"team":"Fancy Pants"}`))

	rec, ok := cache.Lookup("180")
	require.True(t, ok)
	assert.Equal(t, TeamRecord{ID: 7, Name: "Fancy Pants"}, rec)
}

func TestMottoCacheCollapsesInflightLookups(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.RequestRefresh("180"))
	require.NoError(t, cache.RequestRefresh("180"))
	assert.Len(t, queue.submitted, 1)

	// once resolved, a new refresh goes out again
	cache.OnComplete(queue.submitted[0], []byte(`{"bzid":"180","team":"Fancy Pants"}`))
	require.NoError(t, cache.RequestRefresh("180"))
	assert.Len(t, queue.submitted, 2)
}

func TestMottoCacheTeamlessPlayerRemoved(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.RequestRefresh("180"))
	cache.OnComplete(queue.submitted[0], []byte(`{"bzid":"180","team":"Fancy Pants"}`))
	_, ok := cache.Lookup("180")
	require.True(t, ok)

	require.NoError(t, cache.RequestRefresh("180"))
	cache.OnComplete(queue.submitted[1], []byte(`{"bzid":"180","team":""}`))
	_, ok = cache.Lookup("180")
	assert.False(t, ok)
}

func TestMottoCacheUnknownPlayer(t *testing.T) {
	cache := NewMottoCache(&stubSubmitter{})
	rec, ok := cache.Lookup("999")
	assert.False(t, ok)
	assert.Zero(t, rec)
}

func TestMottoCacheBulkRefresh(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	// stale entry that the dump should replace wholesale
	require.NoError(t, cache.RequestRefresh("999"))
	cache.OnComplete(queue.submitted[0], []byte(`{"bzid":"999","team":"Defunct"}`))

	require.NoError(t, cache.BulkRefresh())
	require.Len(t, queue.submitted, 2)
	assert.Equal(t, "teamNameDump", queue.submitted[1].Payload.Get("query"))

	cache.OnComplete(queue.submitted[1], []byte(`[
		{"id":7,"team":"Fancy Pants","members":"100, 300"},
		{"id":9,"team":"Purgatory","members":"200"},
		{"id":11,"team":"","members":"500"}
	]`))

	rec, ok := cache.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, TeamRecord{ID: 7, Name: "Fancy Pants"}, rec)
	rec, ok = cache.Lookup("300")
	require.True(t, ok)
	assert.Equal(t, "Fancy Pants", rec.Name)
	_, ok = cache.Lookup("200")
	assert.True(t, ok)

	// empty team names are skipped, stale entries are gone
	_, ok = cache.Lookup("500")
	assert.False(t, ok)
	_, ok = cache.Lookup("999")
	assert.False(t, ok)
}

func TestMottoCacheBulkRefreshCollapsed(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.BulkRefresh())
	require.NoError(t, cache.BulkRefresh())
	assert.Len(t, queue.submitted, 1)
}

func TestMottoCacheTimeoutAllowsRetry(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.RequestRefresh("180"))
	cache.OnTimeout(queue.submitted[0])

	require.NoError(t, cache.RequestRefresh("180"))
	assert.Len(t, queue.submitted, 2)
}

func TestMottoCacheErrorAllowsRetry(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.BulkRefresh())
	cache.OnError(queue.submitted[0], 503, "unavailable")

	require.NoError(t, cache.BulkRefresh())
	assert.Len(t, queue.submitted, 2)
}

func TestMottoCacheMalformedResponse(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.RequestRefresh("180"))
	cache.OnComplete(queue.submitted[0], []byte("<html>not json</html>"))

	_, ok := cache.Lookup("180")
	assert.False(t, ok)

	// in-flight flag cleared despite the bad body
	require.NoError(t, cache.RequestRefresh("180"))
	assert.Len(t, queue.submitted, 2)
}

func TestMottoCacheEmptyIdentityIgnored(t *testing.T) {
	queue := &stubSubmitter{}
	cache := NewMottoCache(queue)

	require.NoError(t, cache.RequestRefresh(""))
	assert.Empty(t, queue.submitted)
}
