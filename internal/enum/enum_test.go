package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCacheNamespace(t *testing.T) {
	cases := map[string]CacheNamespace{
		"mx":          CacheMX,
		"catch-all":   CacheCatchAll,
		"catch_all":   CacheCatchAll,
		"full-result": CacheFullResult,
		" Blacklist ": CacheBlacklist,
	}
	for input, expected := range cases {
		ns, ok := GetCacheNamespace(input)
		assert.True(t, ok, input)
		assert.Equal(t, expected, ns, input)
	}

	_, ok := GetCacheNamespace("unknown")
	assert.False(t, ok)
}
