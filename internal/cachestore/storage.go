// Package cachestore provides named response stores keyed by request
// identity, in the shape of the browser Cache Storage API: a Storage holds
// any number of named Stores, each mapping request keys to Entries.
package cachestore

import (
	"context"
	"errors"
)

// ErrStoreNotFound is returned when an operation names a store that does not
// exist.
var ErrStoreNotFound = errors.New("cache store not found")

// Storage is a collection of named stores.
type Storage interface {
	// Open returns the named store, creating it if needed.
	Open(ctx context.Context, name string) (Store, error)
	// Has reports whether the named store exists.
	Has(ctx context.Context, name string) (bool, error)
	// Delete removes the named store and all of its entries. It reports
	// whether a store was removed.
	Delete(ctx context.Context, name string) (bool, error)
	// Names lists existing store names in sorted order.
	Names(ctx context.Context) ([]string, error)
	// Match searches every store, in Names order, for key.
	Match(ctx context.Context, key string) (*Entry, bool, error)
}

// Store is a single named key to entry mapping. Match, Put and Delete are
// each atomic.
type Store interface {
	Name() string
	Match(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, key string, e *Entry) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// DeleteAll removes every store in s.
func DeleteAll(ctx context.Context, s Storage) (int, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		ok, err := s.Delete(ctx, name)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func matchAcross(ctx context.Context, s Storage, key string) (*Entry, bool, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		store, err := s.Open(ctx, name)
		if err != nil {
			return nil, false, err
		}
		e, ok, err := store.Match(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return e, true, nil
		}
	}
	return nil, false, nil
}
