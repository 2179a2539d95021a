package geo

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Resolver looks up the coarse location of an address. Lookups are
// pure and side-effect free; ok is false for private or unregistered
// addresses.
type Resolver interface {
	Lookup(ip string) (Location, bool)
}

// StaticResolver serves lookups from a fixed table. Used for tests
// and for deployments that ship their own address fixture.
type StaticResolver struct {
	table map[string]Location
}

func NewStaticResolver(table map[string]Location) *StaticResolver {
	cp := make(map[string]Location, len(table))
	for ip, loc := range table {
		cp[ip] = loc
	}
	return &StaticResolver{table: cp}
}

func (r *StaticResolver) Lookup(ip string) (Location, bool) {
	loc, ok := r.table[ip]
	return loc, ok
}

type cacheEntry struct {
	loc Location
	ok  bool
}

// CachedResolver memoizes lookups in an LRU so network-backed
// resolvers are hit at most once per address, misses included.
type CachedResolver struct {
	next  Resolver
	cache *lru.Cache[string, cacheEntry]
}

func NewCachedResolver(next Resolver, size int) (*CachedResolver, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func (r *CachedResolver) Lookup(ip string) (Location, bool) {
	if entry, hit := r.cache.Get(ip); hit {
		return entry.loc, entry.ok
	}
	loc, ok := r.next.Lookup(ip)
	r.cache.Add(ip, cacheEntry{loc: loc, ok: ok})
	return loc, ok
}
