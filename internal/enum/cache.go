package enum

import "strings"

type CacheNamespace string

const (
	CacheFullResult CacheNamespace = "full"
	CacheMX         CacheNamespace = "mx"
	CacheBlacklist  CacheNamespace = "blacklist"
	CacheDisposable CacheNamespace = "disposable"
	CacheCatchAll   CacheNamespace = "catch_all"
)

var CacheNamespaces = []CacheNamespace{
	CacheFullResult,
	CacheMX,
	CacheBlacklist,
	CacheDisposable,
	CacheCatchAll,
}

func (t CacheNamespace) String() string {
	return string(t)
}

// GetCacheNamespace accepts both "catch_all" and "catch-all" spellings, plus "full-result".
func GetCacheNamespace(s string) (CacheNamespace, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if normalized == "full_result" {
		normalized = string(CacheFullResult)
	}
	for _, ns := range CacheNamespaces {
		if string(ns) == normalized {
			return ns, true
		}
	}
	return "", false
}
