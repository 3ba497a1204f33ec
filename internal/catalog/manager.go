// Package catalog keeps materialized sources alive and serves their tables.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"nexus-catalog/internal/discovery"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/model"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrTableNotFound  = errors.New("table not found")
)

var sourcesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "catalog_sources",
	Help: "Number of sources currently managed by the catalog",
})

// Entry is one managed source.
type Entry struct {
	Descriptor model.SourceDescriptor
	Source     *materializer.MaterializedSource
	LoadedAt   time.Time

	mu     sync.Mutex
	result *discovery.Result
	tables map[string]*Table
}

func (e *Entry) install(r *discovery.Result) {
	tables := make(map[string]*Table, len(r.Tables))
	for _, t := range r.Tables {
		tables[t.Name] = newTable(e.Source, t)
	}
	e.mu.Lock()
	e.result, e.tables = r, tables
	e.mu.Unlock()
}

// Result returns the latest discovery result of the entry.
func (e *Entry) Result() *discovery.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Manager holds materialized sources by name. Replacing or removing a
// source closes its previous materialization after the swap. The result
// cache is only written while mu is held, so it never outlives its entry.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	materializer *materializer.SourceMaterializer
	opts         discovery.Options
	cache        *ResultCache
}

func NewManager(m *materializer.SourceMaterializer, opts discovery.Options, cache *ResultCache) *Manager {
	if m == nil {
		m = materializer.Default()
	}
	if cache == nil {
		cache = NewResultCache(0)
	}
	return &Manager{
		entries:      make(map[string]*Entry),
		materializer: m,
		opts:         opts,
		cache:        cache,
	}
}

// Put materializes and discovers desc, then installs it under desc.Name.
// A materialization failure leaves any existing entry in place.
func (mg *Manager) Put(ctx context.Context, desc model.SourceDescriptor) (*discovery.Result, error) {
	if desc.Name == "" {
		return nil, fmt.Errorf("source name must not be blank")
	}
	src, err := mg.materializer.Materialize(ctx, desc)
	if err != nil {
		return nil, err
	}
	entry := &Entry{Descriptor: desc, Source: src, LoadedAt: time.Now()}
	result := discovery.Discover(ctx, src, mg.opts)
	entry.install(result)

	mg.mu.Lock()
	old := mg.entries[desc.Name]
	mg.entries[desc.Name] = entry
	mg.cache.Set(desc.Name, result)
	sourcesGauge.Set(float64(len(mg.entries)))
	mg.mu.Unlock()

	if old != nil {
		closeEntry(desc.Name, old)
	}
	logrus.WithFields(logrus.Fields{
		"source":   desc.Name,
		"tables":   len(result.Tables),
		"replaced": old != nil,
	}).Info("source installed")
	return result, nil
}

// Get returns the entry for a source.
func (mg *Manager) Get(name string) (*Entry, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	e, ok := mg.entries[name]
	return e, ok
}

// Names returns the managed source names, sorted.
func (mg *Manager) Names() []string {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	names := make([]string, 0, len(mg.entries))
	for n := range mg.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Result returns the discovery result for a source. Once the cached result
// expires the live source is discovered again. A rediscovery that loses to a
// concurrent Put, Refresh or Remove is dropped in favour of the current entry.
func (mg *Manager) Result(ctx context.Context, name string) (*discovery.Result, error) {
	if r, ok := mg.cache.Get(name); ok {
		return r, nil
	}
	e, ok := mg.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	result := discovery.Discover(ctx, e.Source, mg.opts)

	mg.mu.Lock()
	defer mg.mu.Unlock()
	cur, ok := mg.entries[name]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	case cur != e:
		logrus.WithField("source", name).Debug("discarding rediscovery of a replaced source")
		return cur.Result(), nil
	}
	e.install(result)
	mg.cache.Set(name, result)
	return result, nil
}

// Refresh rebuilds a source from its descriptor.
func (mg *Manager) Refresh(ctx context.Context, name string) (*discovery.Result, error) {
	e, ok := mg.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	mg.cache.Invalidate(name)
	return mg.Put(ctx, e.Descriptor)
}

// Table returns a table of a managed source.
func (mg *Manager) Table(ctx context.Context, source, table string) (*Table, error) {
	if _, err := mg.Result(ctx, source); err != nil {
		return nil, err
	}
	e, ok := mg.Get(source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	e.mu.Lock()
	t, ok := e.tables[table]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, source, table)
	}
	return t, nil
}

// Remove closes and forgets a source. It reports whether the source existed.
func (mg *Manager) Remove(name string) bool {
	mg.mu.Lock()
	e, ok := mg.entries[name]
	delete(mg.entries, name)
	mg.cache.Invalidate(name)
	sourcesGauge.Set(float64(len(mg.entries)))
	mg.mu.Unlock()

	if ok {
		closeEntry(name, e)
	}
	return ok
}

// Close closes every managed source.
func (mg *Manager) Close() {
	mg.mu.Lock()
	entries := mg.entries
	mg.entries = make(map[string]*Entry)
	mg.cache.Clear()
	sourcesGauge.Set(0)
	mg.mu.Unlock()

	for name, e := range entries {
		closeEntry(name, e)
	}
}

func closeEntry(name string, e *Entry) {
	if err := e.Source.Close(); err != nil {
		logrus.WithError(err).WithField("source", name).Warn("failed to close source")
	}
}
