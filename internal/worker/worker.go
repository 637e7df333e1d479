// Package worker implements the offline-first caching policy of the blog as
// an http.RoundTripper. A Worker sits between clients and the site origin,
// routes each same-origin GET to one of five caching strategies, and manages
// the versioned cache stores through an install/activate lifecycle.
package worker

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/cachestore"
)

// State is a lifecycle phase of the worker.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
)

// OfflinePath is the page served when a navigation cannot be answered from
// the network or the runtime cache.
const OfflinePath = "/offline.html"

// Options configures a Worker.
type Options struct {
	// Origin is the site the worker fronts. Only requests to this scheme and
	// host are intercepted.
	Origin *url.URL
	// Generation names the current cache stores.
	Generation Generation
	// Precache lists origin paths fetched and stored on install.
	Precache []string
	// MaxAge is the freshness policy per store category.
	MaxAge MaxAges
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
	// OnPrecache, if set, is called once per manifest entry as install
	// settles it. Calls are serialized.
	OnPrecache func(PrecacheResult)
}

// Worker is an http.RoundTripper applying the caching strategies. Requests
// it does not intercept go to the network transport unchanged.
type Worker struct {
	storage  cachestore.Storage
	network  http.RoundTripper
	logger   *zap.Logger
	origin   *url.URL
	gen      Generation
	precache []string
	maxAge   MaxAges
	now      func() time.Time

	onPrecache func(PrecacheResult)

	mu    sync.RWMutex
	state State

	bg sync.WaitGroup
}

var _ http.RoundTripper = (*Worker)(nil)

// New creates a Worker in the parsed state. Call Register (or Install and
// Activate) before it starts intercepting.
func New(storage cachestore.Storage, network http.RoundTripper, logger *zap.Logger, opts Options) *Worker {
	if network == nil {
		network = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		storage:  storage,
		network:  network,
		logger:   logger,
		origin:   opts.Origin,
		gen:      opts.Generation,
		precache: opts.Precache,
		maxAge:   opts.MaxAge,
		now:      now,
		state:    StateParsed,

		onPrecache: opts.OnPrecache,
	}
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	w.logger.Debug("worker state change", zap.String("from", string(prev)), zap.String("to", string(s)))
}

// Generation returns the current cache generation.
func (w *Worker) Generation() Generation { return w.gen }

// Manifest returns the precache paths fetched on install.
func (w *Worker) Manifest() []string { return w.precache }

// Storage returns the underlying cache storage.
func (w *Worker) Storage() cachestore.Storage { return w.storage }

// Wait blocks until every background revalidation has finished.
func (w *Worker) Wait() { w.bg.Wait() }

// RoundTrip answers req through the caching strategy chosen for its URL. An
// intercepted request never fails: network errors turn into cached or
// synthesized offline responses.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	if !w.intercepts(req) {
		return w.network.RoundTrip(req)
	}

	req = wholeResource(req)
	strategy := Classify(req.URL)
	w.logger.Debug("intercepted request",
		zap.String("url", req.URL.String()),
		zap.Stringer("strategy", strategy),
	)

	switch strategy {
	case StrategyImage:
		return w.cacheFirst(req, w.gen.Images, w.maxAge.Images, "Image unavailable"), nil
	case StrategyFont:
		return w.cacheFirst(req, w.gen.Fonts, w.maxAge.Fonts, "Font unavailable"), nil
	case StrategyStatic:
		return w.cacheFirst(req, w.gen.General, w.maxAge.Static, "Asset unavailable"), nil
	case StrategyNetworkFirst:
		return w.networkFirst(req), nil
	default:
		return w.staleWhileRevalidate(req), nil
	}
}

func (w *Worker) intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return false
	}
	if w.origin != nil && (req.URL.Scheme != w.origin.Scheme || req.URL.Host != w.origin.Host) {
		return false
	}
	return w.State() == StateActivated
}

// resolve turns an origin-relative path into an absolute URL.
func (w *Worker) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if w.origin == nil {
		return ref, nil
	}
	return w.origin.ResolveReference(ref), nil
}

func (w *Worker) open(ctx context.Context, name string) cachestore.Store {
	store, err := w.storage.Open(ctx, name)
	if err != nil {
		w.logger.Error("opening cache store", zap.String("store", name), zap.Error(err))
		return nil
	}
	return store
}
