// Package environments owns the two-tier cache of discovered Python
// interpreters. Locator output lands here as partial records, the
// envinfo service promotes them to complete records, and consumers
// read a merged, pruned view with best-effort latency.
package environments

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/karrtikr/pyscout/internal/envinfo"
	"github.com/karrtikr/pyscout/internal/locators"
	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/store"
	"github.com/karrtikr/pyscout/internal/workerpool"
)

// Storage keys. The version key guards rehydration: a mismatch
// discards the cache instead of half-loading an old layout.
const (
	keyVersion  = "environments/version"
	keyPartial  = "environments/partial"
	keyComplete = "environments/complete"

	schemaVersion = "1"
)

// EventReason says what changed about a path.
type EventReason string

const (
	ReasonAdded   EventReason = "added"
	ReasonUpdated EventReason = "updated"
	ReasonRemoved EventReason = "removed"
)

// Event is emitted on the change stream whenever the collection
// mutates.
type Event struct {
	Reason EventReason
	Path   string
}

// Config wires a Collection. Locators are injected as an explicitly
// ordered list; there is no registry.
type Config struct {
	Locators []locators.Locator
	Info     *envinfo.Service
	Store    store.Store
	Fs       platform.Filesystem
	Logger   *log.Logger
	Scope    locators.Scope
}

// Collection is the sole owner and writer of the partial and complete
// record maps. All mutations happen under mu; anything that awaits
// (enrichment, locator runs) re-checks map state after resuming.
type Collection struct {
	mu       sync.Mutex
	partial  map[string]python.Record
	complete map[string]python.Record

	locs   []locators.Locator
	info   *envinfo.Service
	store  store.Store
	fsys   platform.Filesystem
	logger *log.Logger
	scope  locators.Scope

	// firstRecord closes once, the first time any record is added
	// (including rehydration). It is one arm of the best-effort race.
	firstRecord chan struct{}
	firstOnce   sync.Once

	// discoveryDone closes when the current full locator cycle ends.
	// Replaced on refresh.
	discoveryDone chan struct{}
	discovering   bool

	subscribers []chan Event

	tasks     sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
	watcher   *locators.Watcher
}

// New builds a Collection and rehydrates it from the store.
func New(cfg *Config) *Collection {
	c := &Collection{
		partial:       make(map[string]python.Record),
		complete:      make(map[string]python.Record),
		locs:          cfg.Locators,
		info:          cfg.Info,
		store:         cfg.Store,
		fsys:          cfg.Fs,
		logger:        cfg.Logger,
		scope:         cfg.Scope,
		firstRecord:   make(chan struct{}),
		discoveryDone: make(chan struct{}),
		closing:       make(chan struct{}),
	}
	c.rehydrate()
	return c
}

// rehydrate loads the persisted maps. Any error degrades to an empty
// cache; discovery will repopulate it.
func (c *Collection) rehydrate() {
	ctx := context.Background()

	version, ok, err := c.store.Get(ctx, keyVersion)
	if err != nil || !ok || version != schemaVersion {
		if err != nil {
			c.logger.Warn("could not read environment cache version", "err", err)
		}
		return
	}

	load := func(key string, into *map[string]python.Record) {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			return
		}
		if err := json.Unmarshal([]byte(raw), into); err != nil {
			c.logger.Warn("discarding unreadable environment cache", "key", key, "err", err)
			*into = make(map[string]python.Record)
		}
	}
	load(keyPartial, &c.partial)
	load(keyComplete, &c.complete)

	if len(c.partial) > 0 || len(c.complete) > 0 {
		c.firstOnce.Do(func() { close(c.firstRecord) })
	}
}

// persist saves both maps. Caller holds mu.
func (c *Collection) persist() {
	ctx := context.Background()
	save := func(key string, m map[string]python.Record) {
		raw, err := json.Marshal(m)
		if err != nil {
			c.logger.Warn("could not serialize environment cache", "key", key, "err", err)
			return
		}
		if err := c.store.Set(ctx, key, string(raw)); err != nil {
			c.logger.Warn("could not persist environment cache", "key", key, "err", err)
		}
	}
	if err := c.store.Set(ctx, keyVersion, schemaVersion); err != nil {
		c.logger.Warn("could not persist environment cache version", "err", err)
	}
	save(keyPartial, c.partial)
	save(keyComplete, c.complete)
}

// Subscribe returns a channel receiving change events. Slow consumers
// drop events rather than blocking mutation.
func (c *Collection) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// emit delivers an event to all subscribers. Caller holds mu.
func (c *Collection) emit(ev Event) {
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// AddPartial records one locator observation. If a complete record
// already exists for the path it wins and the partial is dropped. When
// awaitEnrichment is true the call blocks until enrichment resolves;
// otherwise enrichment runs as a supervised background task.
func (c *Collection) AddPartial(ctx context.Context, rec python.Record, awaitEnrichment bool) {
	rec.Path = python.NormalizePath(rec.Path)
	if rec.Path == "" {
		return
	}
	if rec.Tier == "" {
		rec.Tier = python.TierPartial
	}

	c.mu.Lock()
	if _, done := c.complete[rec.Path]; done {
		// Complete wins; never regressed by a later partial.
		c.mu.Unlock()
		return
	}

	reason := ReasonAdded
	if existing, ok := c.partial[rec.Path]; ok {
		rec = python.Merge(existing, rec)
		rec.Tier = python.TierPartial
		reason = ReasonUpdated
	}
	c.partial[rec.Path] = rec
	c.persist()
	c.emit(Event{Reason: reason, Path: rec.Path})
	c.mu.Unlock()

	c.firstOnce.Do(func() { close(c.firstRecord) })

	if awaitEnrichment {
		c.enrich(ctx, rec.Path, workerpool.PriorityFront)
		return
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		c.enrich(context.Background(), rec.Path, workerpool.PriorityBack)
	}()
}

// AddPath registers a manually supplied interpreter path and enriches
// it in the background.
func (c *Collection) AddPath(ctx context.Context, path string) {
	c.AddPartial(ctx, python.Record{
		Path:   path,
		Kind:   python.KindUnknown,
		Source: python.SourceKnownPath,
	}, false)
}

// enrich asks the info service about path and, on success, promotes
// the stored partial to a complete record. Map state is re-checked
// after the await: another enrichment may have won the race, or a
// prune may have removed the entry while the probe ran.
func (c *Collection) enrich(ctx context.Context, path string, priority workerpool.Priority) {
	info := c.info.GetInfo(ctx, path, priority)
	if info == nil {
		// ProbeFailure: absence, retryable on the next discovery pass.
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.complete[path]; done {
		return
	}
	rec, ok := c.partial[path]
	if !ok {
		// Pruned while the probe was in flight; promoting now would
		// resurrect a path that no longer exists on disk.
		return
	}
	rec.Path = path
	rec.Version = info.Version
	rec.Architecture = info.Architecture
	if rec.Kind == "" {
		rec.Kind = python.KindUnknown
	}
	rec.Tier = python.TierComplete

	delete(c.partial, path)
	c.complete[path] = rec
	c.persist()
	c.emit(Event{Reason: ReasonUpdated, Path: path})
}

// Environments returns the current records with best-effort latency:
// invalid entries are pruned, discovery is kicked off if it never ran,
// and the call returns as soon as either at least one record exists or
// the full locator cycle has finished, whichever happens first.
func (c *Collection) Environments(ctx context.Context) []python.Record {
	c.prune()

	c.mu.Lock()
	if !c.discovering {
		c.startDiscoveryLocked()
	}
	done := c.discoveryDone
	c.mu.Unlock()

	if recs := c.snapshot(); len(recs) > 0 {
		return recs
	}

	select {
	case <-c.firstRecord:
	case <-done:
	case <-ctx.Done():
	}
	return c.snapshot()
}

// Refresh forces a fresh locator cycle and waits for it to complete.
func (c *Collection) Refresh(ctx context.Context) []python.Record {
	c.mu.Lock()
	c.startDiscoveryLocked()
	done := c.discoveryDone
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
	c.prune()
	return c.snapshot()
}

// startDiscoveryLocked launches one concurrent pass over all locators.
// Caller holds mu.
func (c *Collection) startDiscoveryLocked() {
	c.discovering = true
	done := make(chan struct{})
	c.discoveryDone = done

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		defer close(done)

		g, ctx := errgroup.WithContext(context.Background())
		for _, loc := range c.locs {
			loc := loc
			g.Go(func() error {
				recs, err := loc.Environments(ctx, c.scope)
				if err != nil {
					// Locator failure never fails discovery as a whole.
					c.logger.Warn("locator failed", "locator", loc.Name(), "err", err)
					return nil
				}
				for _, rec := range recs {
					c.AddPartial(ctx, rec, false)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// prune drops records whose interpreter no longer exists on disk.
func (c *Collection) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for _, m := range []map[string]python.Record{c.partial, c.complete} {
		for path := range m {
			if c.fsys.Exists(path) {
				continue
			}
			delete(m, path)
			changed = true
			c.emit(Event{Reason: ReasonRemoved, Path: path})
		}
	}
	if changed {
		c.persist()
	}
}

// snapshot returns the union of both tiers. Complete shadows partial
// for the same path (a window during promotion can have the path
// transiently in both).
func (c *Collection) snapshot() []python.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]python.Record, 0, len(c.partial)+len(c.complete))
	for path, rec := range c.partial {
		if _, ok := c.complete[path]; ok {
			continue
		}
		records = append(records, rec)
	}
	for _, rec := range c.complete {
		records = append(records, rec)
	}
	return records
}

// Lookup returns the record for a normalized path, complete tier
// preferred.
func (c *Collection) Lookup(path string) (python.Record, bool) {
	path = python.NormalizePath(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.complete[path]; ok {
		return rec, true
	}
	rec, ok := c.partial[path]
	return rec, ok
}

// Watch starts filesystem watches over every watchable locator's roots
// and refreshes discovery when an environment appears or vanishes. The
// settle delay lets a new environment finish materializing before it
// is classified.
func (c *Collection) Watch(settle time.Duration) error {
	var roots []string
	for _, loc := range c.locs {
		if w, ok := loc.(locators.Watchable); ok {
			for _, root := range w.WatchRoots(c.scope) {
				if c.fsys.Exists(root) {
					roots = append(roots, root)
				}
			}
		}
	}
	if len(roots) == 0 {
		return nil
	}

	watcher, err := locators.NewWatcher(roots, settle, c.logger)
	if err != nil {
		return err
	}
	c.watcher = watcher

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		for {
			select {
			case <-c.closing:
				return
			case _, ok := <-watcher.Events():
				if !ok {
					return
				}
				c.mu.Lock()
				c.startDiscoveryLocked()
				c.mu.Unlock()
			}
		}
	}()
	return nil
}

// Close stops watching, waits for supervised background tasks and
// persists the final state.
func (c *Collection) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		if c.watcher != nil {
			c.watcher.Close()
		}
		c.tasks.Wait()

		c.mu.Lock()
		c.persist()
		c.mu.Unlock()
	})
}
