package core

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// FormulaCache keeps parsed formula trees keyed by their text. Trees are
// immutable, so one cache is shared by every goroutine scoring batches.
type FormulaCache struct {
	parser *FormulaParser
	cache  *lru.Cache // nil when caching is disabled
	stats  FormulaCacheStats
}

// FormulaCacheStats tracks cache effectiveness
type FormulaCacheStats struct {
	Hits   int64
	Misses int64
}

// NewFormulaCache creates a cache holding up to size trees; size 0
// disables caching
func NewFormulaCache(size int) (*FormulaCache, error) {
	fc := &FormulaCache{parser: NewFormulaParser()}
	if size > 0 {
		cache, err := lru.New(size)
		if err != nil {
			return nil, err
		}
		fc.cache = cache
	}
	return fc, nil
}

// Parse returns the cached tree for text, parsing it on a miss. Parse
// errors are not cached.
func (fc *FormulaCache) Parse(text string) (Expression, error) {
	if fc.cache != nil {
		if v, ok := fc.cache.Get(text); ok {
			atomic.AddInt64(&fc.stats.Hits, 1)
			return v.(Expression), nil
		}
	}
	atomic.AddInt64(&fc.stats.Misses, 1)
	expr, err := fc.parser.Parse(text)
	if err != nil {
		GetTracer().Warn(TraceComponentTransform, "Formula parse failed", TraceContext("formula", text, "error", err.Error()))
		return nil, err
	}
	if fc.cache != nil {
		fc.cache.Add(text, expr)
	}
	return expr, nil
}

// Stats returns a snapshot of the hit and miss counters
func (fc *FormulaCache) Stats() FormulaCacheStats {
	return FormulaCacheStats{
		Hits:   atomic.LoadInt64(&fc.stats.Hits),
		Misses: atomic.LoadInt64(&fc.stats.Misses),
	}
}

// Len returns the number of cached trees
func (fc *FormulaCache) Len() int {
	if fc.cache == nil {
		return 0
	}
	return fc.cache.Len()
}

// Purge empties the cache
func (fc *FormulaCache) Purge() {
	if fc.cache != nil {
		fc.cache.Purge()
	}
}

var (
	defaultFormulaCache   *FormulaCache
	defaultFormulaCacheMu sync.Mutex
)

// DefaultFormulaCache returns the process-wide cache used by Formula
// and Aggregate sqlWhere
func DefaultFormulaCache() *FormulaCache {
	defaultFormulaCacheMu.Lock()
	defer defaultFormulaCacheMu.Unlock()
	if defaultFormulaCache == nil {
		defaultFormulaCache, _ = NewFormulaCache(DefaultConfig().Formula.CacheSize)
	}
	return defaultFormulaCache
}

// ConfigureFormulaCache replaces the process-wide cache with one of the
// given size
func ConfigureFormulaCache(size int) error {
	fc, err := NewFormulaCache(size)
	if err != nil {
		return err
	}
	defaultFormulaCacheMu.Lock()
	defaultFormulaCache = fc
	defaultFormulaCacheMu.Unlock()
	return nil
}
