package poa

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refsCacheHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_refs_cache_hit",
		Help: "The total number of block-reference cache hits.",
	})
	refsCacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_refs_cache_miss",
		Help: "The total number of block-reference cache misses.",
	})
)

// refsCache memoizes cid -> block children lookups. Entries are
// immutable once written because a cid names immutable data.
type refsCache struct {
	cache *lru.Cache
}

func newRefsCache(size int) (*refsCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "could not create refs cache")
	}
	return &refsCache{cache: c}, nil
}

func (r *refsCache) get(cid string) ([]string, bool) {
	if v, ok := r.cache.Get(cid); ok {
		refsCacheHit.Inc()
		return v.([]string), true
	}
	refsCacheMiss.Inc()
	return nil, false
}

func (r *refsCache) put(cid string, refs []string) {
	r.cache.Add(cid, refs)
}
