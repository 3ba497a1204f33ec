// Package registry binds descriptor kinds to the factories that realize them.
//
// Plugin packages contribute factories from init() through a Providers list,
// the same way database/sql drivers register themselves. A Registry snapshots
// its provider list on first use and serves lookups from that snapshot.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Factory realizes descriptors of one kind into runtime components.
type Factory[D any, C any] interface {
	// Kind is the descriptor discriminator this factory handles.
	Kind() string
	// NewDescriptor returns an empty descriptor of this kind, used when decoding.
	NewDescriptor() D
	Create(ctx context.Context, d D) (C, error)
}

// UnknownKindError is returned when no factory is registered for a kind.
type UnknownKindError struct {
	Family string
	Kind   string
	Known  []string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("no %s factory registered for kind %q, available: %v", e.Family, e.Kind, e.Known)
}

// Registry resolves descriptors to factories by kind.
type Registry[D any, C any] struct {
	family string
	kindOf func(D) string
	load   func() []Factory[D, C]

	once      sync.Once
	factories map[string]Factory[D, C]
	kinds     []string
}

// New creates a registry. load is called once, on first use.
func New[D any, C any](family string, kindOf func(D) string, load func() []Factory[D, C]) *Registry[D, C] {
	return &Registry[D, C]{family: family, kindOf: kindOf, load: load}
}

// Of creates a registry over a fixed factory list.
func Of[D any, C any](family string, kindOf func(D) string, factories ...Factory[D, C]) *Registry[D, C] {
	return New(family, kindOf, func() []Factory[D, C] { return factories })
}

func (r *Registry[D, C]) init() {
	r.once.Do(func() {
		r.factories = make(map[string]Factory[D, C])
		var loaded []Factory[D, C]
		if r.load != nil {
			loaded = r.load()
		}
		for _, f := range loaded {
			kind := f.Kind()
			if _, dup := r.factories[kind]; dup {
				logrus.WithFields(logrus.Fields{"family": r.family, "kind": kind}).
					Warn("duplicate factory ignored")
				continue
			}
			r.factories[kind] = f
			r.kinds = append(r.kinds, kind)
		}
		sort.Strings(r.kinds)
	})
}

func (r *Registry[D, C]) Family() string {
	return r.family
}

// Kinds returns the registered kinds, sorted.
func (r *Registry[D, C]) Kinds() []string {
	r.init()
	out := make([]string, len(r.kinds))
	copy(out, r.kinds)
	return out
}

func (r *Registry[D, C]) IsSupported(kind string) bool {
	r.init()
	_, ok := r.factories[kind]
	return ok
}

// Factory returns the factory registered for kind.
func (r *Registry[D, C]) Factory(kind string) (Factory[D, C], error) {
	r.init()
	f, ok := r.factories[kind]
	if !ok {
		return nil, &UnknownKindError{Family: r.family, Kind: kind, Known: r.Kinds()}
	}
	return f, nil
}

// Lookup returns the factory for the descriptor's kind.
func (r *Registry[D, C]) Lookup(d D) (Factory[D, C], error) {
	return r.Factory(r.kindOf(d))
}

// NewDescriptor returns an empty descriptor for kind.
func (r *Registry[D, C]) NewDescriptor(kind string) (D, error) {
	f, err := r.Factory(kind)
	if err != nil {
		var zero D
		return zero, err
	}
	return f.NewDescriptor(), nil
}

// Create looks up the descriptor's factory and realizes it.
func (r *Registry[D, C]) Create(ctx context.Context, d D) (C, error) {
	var zero C
	f, err := r.Lookup(d)
	if err != nil {
		return zero, err
	}
	c, err := f.Create(ctx, d)
	if err != nil {
		return zero, fmt.Errorf("create %s %q: %w", r.family, f.Kind(), err)
	}
	return c, nil
}
