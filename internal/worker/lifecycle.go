package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/cachestore"
)

var (
	// ErrInvalidState is returned when a lifecycle step is attempted from
	// the wrong phase.
	ErrInvalidState = errors.New("invalid worker state")
	// ErrUnknownMessage is returned for message types the worker does not
	// understand.
	ErrUnknownMessage = errors.New("unknown worker message")
)

// MessageType identifies a control message sent to the worker.
type MessageType string

const (
	MessageSkipWaiting MessageType = "SKIP_WAITING"
	MessageClearCache  MessageType = "CLEAR_CACHE"
)

// Message is a control message, as posted by a client page.
type Message struct {
	Type MessageType `json:"type"`
}

// PrecacheResult is the outcome of caching one manifest entry on install.
type PrecacheResult struct {
	Path   string
	Status int
	Stored bool
	Err    error
}

// OK reports whether the entry was stored.
func (r PrecacheResult) OK() bool { return r.Err == nil && r.Stored }

// Register installs the worker and then forces it active without waiting.
func (w *Worker) Register(ctx context.Context) ([]PrecacheResult, error) {
	results, err := w.Install(ctx)
	if err != nil {
		return results, err
	}
	return results, w.SkipWaiting(ctx)
}

// Install opens the current generation's stores and pre-warms the general
// store with the precache manifest. Entries are fetched concurrently and each
// one succeeds or fails on its own; install completes once all have settled.
func (w *Worker) Install(ctx context.Context) ([]PrecacheResult, error) {
	w.setState(StateInstalling)
	w.logger.Info("installing worker", zap.String("generation", w.gen.General))

	var general cachestore.Store
	for _, name := range w.gen.Names() {
		store, err := w.storage.Open(ctx, name)
		if err != nil {
			w.setState(StateParsed)
			return nil, fmt.Errorf("opening cache store %s: %w", name, err)
		}
		if name == w.gen.General {
			general = store
		}
	}

	results := make([]PrecacheResult, len(w.precache))
	var (
		wg       sync.WaitGroup
		reportMu sync.Mutex
	)
	for i, path := range w.precache {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = w.precacheOne(ctx, general, path)
			if w.onPrecache != nil {
				reportMu.Lock()
				w.onPrecache(results[i])
				reportMu.Unlock()
			}
		}()
	}
	wg.Wait()

	cached := 0
	for _, r := range results {
		if r.OK() {
			cached++
		}
	}
	w.logger.Info("worker installed", zap.Int("cached", cached), zap.Int("manifest", len(results)))

	w.setState(StateInstalled)
	return results, nil
}

func (w *Worker) precacheOne(ctx context.Context, store cachestore.Store, path string) PrecacheResult {
	res := PrecacheResult{Path: path}

	u, err := w.resolve(path)
	if err != nil {
		res.Err = fmt.Errorf("parsing precache path: %w", err)
		w.logger.Warn("failed to cache", zap.String("path", path), zap.Error(res.Err))
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		res.Err = err
		w.logger.Warn("failed to cache", zap.String("path", path), zap.Error(err))
		return res
	}

	entry, err := w.fetch(req)
	if err != nil {
		res.Err = err
		w.logger.Warn("failed to cache", zap.String("path", path), zap.Error(err))
		return res
	}
	res.Status = entry.Status
	if !storable(entry) {
		w.logger.Warn("failed to cache (not a whole 2xx response)", zap.String("path", path), zap.Int("status", entry.Status))
		return res
	}

	stamp(entry.Header, w.now())
	if err := store.Put(ctx, cachestore.URLKey(u), entry); err != nil {
		res.Err = err
		w.logger.Warn("failed to cache", zap.String("path", path), zap.Error(err))
		return res
	}
	res.Stored = true
	w.logger.Debug("cached", zap.String("path", path))
	return res
}

// SkipWaiting activates an installed worker immediately. In any other phase
// it does nothing.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	if w.State() != StateInstalled {
		return nil
	}
	return w.Activate(ctx)
}

// Activate evicts every store outside the current generation, sweeps expired
// entries from the runtime and image stores, and then claims clients so that
// requests start being intercepted.
func (w *Worker) Activate(ctx context.Context) error {
	if s := w.State(); s != StateInstalled {
		return fmt.Errorf("activating from %s: %w", s, ErrInvalidState)
	}
	w.setState(StateActivating)
	w.logger.Info("activating worker", zap.String("generation", w.gen.General))

	names, err := w.storage.Names(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("listing cache stores: %w", err)
	}
	for _, name := range names {
		if w.gen.Contains(name) {
			continue
		}
		w.logger.Info("removing old cache", zap.String("store", name))
		if _, err := w.storage.Delete(ctx, name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("deleting cache store %s: %w", name, err)
		}
	}

	if _, err := w.Sweep(ctx); err != nil {
		w.logger.Error("cleaning expired entries", zap.Error(err))
	}

	w.setState(StateActivated)
	w.logger.Info("worker activated")
	return nil
}

// Sweep deletes expired entries from the runtime and image stores and
// returns how many were removed. A failing store does not stop the other.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	targets := []struct {
		name   string
		maxAge time.Duration
	}{
		{w.gen.Runtime, w.maxAge.Runtime},
		{w.gen.Images, w.maxAge.Images},
	}

	removed := 0
	var errs []error
	for _, t := range targets {
		n, err := w.sweepStore(ctx, t.name, t.maxAge)
		removed += n
		if err != nil {
			errs = append(errs, fmt.Errorf("sweeping %s: %w", t.name, err))
		}
	}
	return removed, errors.Join(errs...)
}

func (w *Worker) sweepStore(ctx context.Context, name string, maxAge time.Duration) (int, error) {
	store, err := w.storage.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, err
	}

	now := w.now()
	removed := 0
	for _, key := range keys {
		e, ok, err := store.Match(ctx, key)
		if err != nil {
			return removed, err
		}
		if !ok || !Expired(e.Header, maxAge, now) {
			continue
		}
		if _, err := store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
		w.logger.Debug("cleaned expired cache entry", zap.String("store", name), zap.String("key", key))
	}
	return removed, nil
}

// HandleMessage processes a control message from a client.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		return w.SkipWaiting(ctx)
	case MessageClearCache:
		n, err := cachestore.DeleteAll(ctx, w.storage)
		if err != nil {
			return fmt.Errorf("clearing caches: %w", err)
		}
		w.logger.Info("cleared all caches", zap.Int("stores", n))
		return nil
	default:
		return fmt.Errorf("%q: %w", msg.Type, ErrUnknownMessage)
	}
}
