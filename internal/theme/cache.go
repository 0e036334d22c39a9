package theme

import (
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rendis/diagen/pkg/schema"
)

const defaultCacheSize = 128

// ThemeResolver is satisfied by Resolver and CachedResolver.
type ThemeResolver interface {
	Resolve(req schema.ThemeRequest) Theme
}

// CachedResolver memoizes Resolve by request value. Resolve is pure, so a hit
// is indistinguishable from a fresh resolution.
type CachedResolver struct {
	delegate *Resolver
	cache    *lru.Cache[string, Theme]
}

// NewCachedResolver wraps delegate with an LRU of the given size.
// A non-positive size falls back to the default.
func NewCachedResolver(delegate *Resolver, size int) *CachedResolver {
	if delegate == nil {
		delegate = defaultResolver
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	// lru.New only errors on non-positive size, guarded above.
	cache, _ := lru.New[string, Theme](size)
	return &CachedResolver{delegate: delegate, cache: cache}
}

// Resolve returns the cached theme for req, resolving it on a miss.
func (c *CachedResolver) Resolve(req schema.ThemeRequest) Theme {
	key := cacheKey(req)
	if t, ok := c.cache.Get(key); ok {
		return t.clone()
	}
	t := c.delegate.Resolve(req)
	c.cache.Add(key, t)
	return t.clone()
}

// Len returns the number of cached themes.
func (c *CachedResolver) Len() int {
	return c.cache.Len()
}

func (t Theme) clone() Theme {
	if t.Ignored != nil {
		t.Ignored = append([]string(nil), t.Ignored...)
	}
	return t
}

// cacheKey canonicalises a request. Blank overrides are dropped so they share
// an entry with the request that omits them. Keys and values are quoted so no
// pair can be spelled two ways.
func cacheKey(req schema.ThemeRequest) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(normalizeID(req.PresetID)))
	keys := make([]string, 0, len(req.Overrides))
	for k, v := range req.Overrides {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(strings.TrimSpace(req.Overrides[k])))
	}
	return b.String()
}
