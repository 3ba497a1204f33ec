package registry

import (
	"context"
	"fmt"
	"sync"
)

// Providers is a process-wide list of factories that plugin packages append to
// from init(). Registering the same kind twice panics.
type Providers[D any, C any] struct {
	mu        sync.Mutex
	factories []Factory[D, C]
}

func (p *Providers[D, C]) Register(f Factory[D, C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f == nil {
		panic("registry: Register factory is nil")
	}
	for _, existing := range p.factories {
		if existing.Kind() == f.Kind() {
			panic(fmt.Sprintf("registry: Register called twice for kind %q", f.Kind()))
		}
	}
	p.factories = append(p.factories, f)
}

// Snapshot returns the factories registered so far.
func (p *Providers[D, C]) Snapshot() []Factory[D, C] {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Factory[D, C], len(p.factories))
	copy(out, p.factories)
	return out
}

// FactoryFunc adapts a kind, a descriptor constructor and a create function
// into a Factory.
type FactoryFunc[D any, C any] struct {
	KindName   string
	Descriptor func() D
	CreateFunc func(ctx context.Context, d D) (C, error)
}

func (f FactoryFunc[D, C]) Kind() string { return f.KindName }

func (f FactoryFunc[D, C]) NewDescriptor() D { return f.Descriptor() }

func (f FactoryFunc[D, C]) Create(ctx context.Context, d D) (C, error) {
	return f.CreateFunc(ctx, d)
}

// As converts a descriptor held by value or by pointer into *T.
func As[T any](d any) (*T, error) {
	switch v := d.(type) {
	case *T:
		if v == nil {
			return nil, fmt.Errorf("nil %T descriptor", v)
		}
		return v, nil
	case T:
		return &v, nil
	default:
		var want *T
		return nil, fmt.Errorf("unexpected descriptor %T, want %T", d, want)
	}
}
