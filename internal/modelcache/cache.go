package modelcache

import (
	"container/list"
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/observability"
)

// Defaults for New.
const (
	DefaultCapacity      = 1000
	DefaultMaxAge        = 24 * time.Hour
	DefaultAccuracyFloor = 0.7
	// evictFraction of the entries is dropped when capacity is exceeded.
	evictFraction = 0.2
)

// Store persists cache entries. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, signature string) error
	LoadAll(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error
}

// Record is the persisted form of one signature.
type Record struct {
	Model    *Model         `json:"model"`
	Versions []ModelVersion `json:"versions"`
}

type entry struct {
	model *Model
	elem  *list.Element
}

// Cache is a bounded, signature-keyed model cache. It is safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // front is most recently used; values are signatures
	versions map[string][]ModelVersion
	group    singleflight.Group

	now      func() time.Time
	capacity int
	maxAge   time.Duration
	floor    float64
	store    Store
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCapacity bounds the number of entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithMaxAge sets the age after which an entry is stale.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithAccuracyFloor sets the accuracy below which an entry is stale.
func WithAccuracyFloor(f float64) Option {
	return func(c *Cache) { c.floor = f }
}

// WithStore enables write-through persistence.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		versions: make(map[string][]ModelVersion),
		now:      time.Now,
		capacity: DefaultCapacity,
		maxAge:   DefaultMaxAge,
		floor:    DefaultAccuracyFloor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the model for sig. A hit refreshes LastUsed and
// UsageCount. A stale entry is removed and reported as a miss.
func (c *Cache) Get(sig string) (*Model, bool) {
	c.mu.Lock()
	e, ok := c.entries[sig]
	if !ok {
		c.mu.Unlock()
		observability.CacheLookup("miss")
		return nil, false
	}
	if c.stale(e.model) {
		c.removeLocked(sig, false)
		size := len(c.entries)
		c.mu.Unlock()
		observability.CacheLookup("stale")
		observability.CacheSize(size)
		c.deleteStored(sig)
		return nil, false
	}
	e.model.LastUsed = c.now()
	e.model.Metadata.UsageCount++
	c.lru.MoveToFront(e.elem)
	m := e.model.clone()
	c.mu.Unlock()

	observability.CacheLookup("hit")
	return m, true
}

// peek returns a fresh entry without touching usage.
func (c *Cache) peek(sig string) (*Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sig]
	if !ok || c.stale(e.model) {
		return nil, false
	}
	return e.model.clone(), true
}

// Put stores m under sig as a new version and returns the stored copy.
// CreatedAt and LastUsed are set to now. A zero accuracy starts at
// InitialAccuracy. When the cache exceeds capacity, the least recently
// used fifth of the entries is evicted.
func (c *Cache) Put(sig string, m *Model, changes []string) *Model {
	m = m.clone()
	now := c.now()

	c.mu.Lock()
	vs := c.versions[sig]
	version := 1
	if len(vs) > 0 {
		version = vs[len(vs)-1].Version + 1
	}
	m.Signature = sig
	m.Version = version
	m.CreatedAt = now
	m.LastUsed = now
	if m.Metadata.Accuracy == 0 {
		m.Metadata.Accuracy = InitialAccuracy
	}
	c.versions[sig] = append(vs, ModelVersion{
		Version:   version,
		CreatedAt: now,
		Accuracy:  m.Metadata.Accuracy,
		Changes:   append([]string(nil), changes...),
	})

	if e, ok := c.entries[sig]; ok {
		e.model = m
		c.lru.MoveToFront(e.elem)
	} else {
		c.entries[sig] = &entry{model: m, elem: c.lru.PushFront(sig)}
	}
	evicted := c.evictLocked()
	rec := Record{Model: m.clone(), Versions: append([]ModelVersion(nil), c.versions[sig]...)}
	size := len(c.entries)
	c.mu.Unlock()

	observability.CacheSize(size)
	if len(evicted) > 0 {
		observability.CacheEvicted(len(evicted))
		c.logger.Debug("model cache eviction", "evicted", len(evicted), "size", size)
	}
	if c.store != nil {
		ctx := context.Background()
		if err := c.store.Save(ctx, rec); err != nil {
			c.logger.Warn("persist cached model", "signature", sig, "error", err)
		}
		for _, s := range evicted {
			c.deleteStored(s)
		}
	}
	return rec.Model
}

// GetOrCompute returns the cached model for sig, or runs fn and caches its
// result. Concurrent callers for the same signature share one fn call.
// The boolean reports a cache hit.
func (c *Cache) GetOrCompute(ctx context.Context, sig string, fn func(context.Context) (*Model, []string, error)) (*Model, bool, error) {
	if m, ok := c.Get(sig); ok {
		return m, true, nil
	}
	v, err, _ := c.group.Do(sig, func() (any, error) {
		if m, ok := c.peek(sig); ok {
			return m, nil
		}
		m, changes, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return c.Put(sig, m, changes), nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Model).clone(), false, nil
}

// RecordOutcome folds an observed improvement (percent) into the model's
// accuracy as a cumulative moving average, with the initial accuracy
// counting as one prior observation.
func (c *Cache) RecordOutcome(sig string, observed float64) (float64, error) {
	c.mu.Lock()
	e, ok := c.entries[sig]
	if !ok {
		c.mu.Unlock()
		return 0, &flow.NotFoundError{Entity: "model", ID: sig}
	}
	md := &e.model.Metadata
	sample := 1 - math.Abs(observed-e.model.ExpectedImprovement)/100
	sample = math.Max(0, math.Min(1, sample))
	n := float64(md.Outcomes + 1)
	md.Accuracy = (md.Accuracy*n + sample) / (n + 1)
	md.Outcomes++
	accuracy := md.Accuracy
	rec := Record{Model: e.model.clone(), Versions: append([]ModelVersion(nil), c.versions[sig]...)}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(context.Background(), rec); err != nil {
			c.logger.Warn("persist cached model", "signature", sig, "error", err)
		}
	}
	return accuracy, nil
}

// Versions returns the version history for sig, oldest first.
func (c *Cache) Versions(sig string) []ModelVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ModelVersion(nil), c.versions[sig]...)
}

// Stats summarises the live entries.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Stats
	var acc float64
	for _, e := range c.entries {
		s.TotalModels++
		s.TotalUsage += e.model.Metadata.UsageCount
		acc += e.model.Metadata.Accuracy
	}
	if s.TotalModels > 0 {
		s.AverageAccuracy = acc / float64(s.TotalModels)
	}
	return s
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry and version, and clears the store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.versions = make(map[string][]ModelVersion)
	c.mu.Unlock()

	observability.CacheSize(0)
	if c.store != nil {
		return c.store.Clear(ctx)
	}
	return nil
}

// Load restores entries from the store. Stale records are skipped and
// deleted. It returns the number of entries restored.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	recs, err := c.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	// Oldest first so the most recently used ends up at the front.
	sort.Slice(recs, func(i, j int) bool { return recs[i].Model.LastUsed.Before(recs[j].Model.LastUsed) })

	var stale []string
	c.mu.Lock()
	for _, r := range recs {
		if r.Model == nil {
			continue
		}
		sig := r.Model.Signature
		if c.stale(r.Model) {
			stale = append(stale, sig)
			continue
		}
		if e, ok := c.entries[sig]; ok {
			c.lru.Remove(e.elem)
		}
		c.entries[sig] = &entry{model: r.Model.clone(), elem: c.lru.PushFront(sig)}
		c.versions[sig] = append([]ModelVersion(nil), r.Versions...)
	}
	evicted := c.evictLocked()
	n := len(c.entries)
	c.mu.Unlock()

	observability.CacheSize(n)
	for _, s := range append(stale, evicted...) {
		c.deleteStored(s)
	}
	c.logger.Info("model cache loaded", "restored", n, "stale", len(stale))
	return n, nil
}

func (c *Cache) stale(m *Model) bool {
	return c.now().Sub(m.CreatedAt) > c.maxAge || m.Metadata.Accuracy < c.floor
}

// removeLocked drops the entry. Stale removals keep the version history so
// the next Put continues the sequence.
func (c *Cache) removeLocked(sig string, dropHistory bool) {
	if e, ok := c.entries[sig]; ok {
		c.lru.Remove(e.elem)
		delete(c.entries, sig)
	}
	if dropHistory {
		delete(c.versions, sig)
	}
}

// evictLocked drops ceil(20%) of the entries from the LRU tail when over
// capacity.
func (c *Cache) evictLocked() []string {
	if len(c.entries) <= c.capacity {
		return nil
	}
	n := int(math.Ceil(float64(len(c.entries)) * evictFraction))
	var out []string
	for i := 0; i < n; i++ {
		back := c.lru.Back()
		if back == nil {
			break
		}
		sig := back.Value.(string)
		c.removeLocked(sig, true)
		out = append(out, sig)
	}
	return out
}

func (c *Cache) deleteStored(sig string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(context.Background(), sig); err != nil {
		c.logger.Warn("delete cached model", "signature", sig, "error", err)
	}
}
