package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfmemory/memoryd/internal/memory"
)

func TestQueryCache_PutThenGetRoundTrips(t *testing.T) {
	c, err := NewQueryCache(10, time.Minute)
	require.NoError(t, err)

	fp := Fingerprint("how do I retry a flaky request", "web-api", memory.TaskDebugging, 5)
	results := []memory.Episode{{ID: "ep-1"}}
	c.Put(fp, "web-api", results, 64)

	entry, ok := c.Get(fp)
	require.True(t, ok)
	assert.Equal(t, "ep-1", entry.Results[0].ID)
}

func TestQueryCache_ExpiredEntryIsEvicted(t *testing.T) {
	c, err := NewQueryCache(10, time.Nanosecond)
	require.NoError(t, err)

	fp := Fingerprint("query", "domain-a", "", 5)
	c.Put(fp, "domain-a", []memory.Episode{{ID: "ep-1"}}, 32)

	time.Sleep(time.Millisecond)
	_, ok := c.Get(fp)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestQueryCache_OversizedResultIsNotCached(t *testing.T) {
	c, err := NewQueryCache(10, time.Minute)
	require.NoError(t, err)

	fp := Fingerprint("query", "domain-a", "", 5)
	c.Put(fp, "domain-a", []memory.Episode{{ID: "ep-1"}}, maxCachedResultBytes+1)

	_, ok := c.Get(fp)
	assert.False(t, ok)
}

func TestQueryCache_InvalidateDomainDropsOnlyThatDomain(t *testing.T) {
	c, err := NewQueryCache(10, time.Minute)
	require.NoError(t, err)

	fpA := Fingerprint("q1", "domain-a", "", 5)
	fpB := Fingerprint("q2", "domain-b", "", 5)
	c.Put(fpA, "domain-a", []memory.Episode{{ID: "a"}}, 32)
	c.Put(fpB, "domain-b", []memory.Episode{{ID: "b"}}, 32)

	c.InvalidateDomain("domain-a")

	_, okA := c.Get(fpA)
	_, okB := c.Get(fpB)
	assert.False(t, okA)
	assert.True(t, okB)
	assert.Equal(t, []string{"domain-b"}, c.SortedDomains())
}

func TestFingerprint_NormalizesCaseAndWhitespace(t *testing.T) {
	fp1 := Fingerprint("  How Do I  retry ", "d", "", 5)
	fp2 := Fingerprint("how do i retry", "d", "", 5)
	assert.Equal(t, fp1, fp2)
}
