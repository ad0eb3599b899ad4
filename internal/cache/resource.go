package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"perp_go/internal/domain"
)

var (
	// ErrDisabled is returned when the Enabled predicate rejects a key.
	ErrDisabled = errors.New("resource disabled for key")

	// ErrClosed is returned once the resource has been closed.
	ErrClosed = errors.New("resource closed")
)

// StaleError is returned by Fetch and Refetch when a refresh failed while a
// previous value is still cached. That value is returned alongside it.
type StaleError struct {
	Err       error
	FetchedAt time.Time
}

func (e *StaleError) Error() string {
	return "serving stale value: " + e.Err.Error()
}

func (e *StaleError) Unwrap() error {
	return e.Err
}

// IsStale reports whether err came with a usable last good value.
func IsStale(err error) bool {
	var se *StaleError
	return errors.As(err, &se)
}

// FetchFunc loads the value for one key from upstream.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Recorder receives cache events. infra.Metrics implements it.
type Recorder interface {
	RecordFetch(resource string, latency time.Duration)
	RecordFetchError(resource string)
	RecordRetry(resource string)
	RecordDedup(resource string)
	RecordDiscard(resource string)
}

// Snapshot is a consumer's read-only view of one entry.
type Snapshot[V any] struct {
	Value     V
	HasValue  bool
	IsLoading bool
	Err       error
	FetchedAt time.Time
	Stale     bool
	Retries   int // retries used by the last landed fetch
}

// Config declares a resource. Fetch is required.
type Config[K comparable, V any] struct {
	Name   string
	Policy Policy
	Fetch  FetchFunc[K, V]

	// Enabled disables fetching for keys it rejects. nil enables every key.
	Enabled func(K) bool

	// KeyString maps a key onto the de-duplication key. Defaults to fmt.Sprint.
	KeyString func(K) string

	// OnUpdate runs after every value that lands, in landing order.
	// It must not call Set on the same resource.
	OnUpdate func(K, V)

	Recorder Recorder
	Now      func() time.Time
	Logger   *slog.Logger
}

type entry[V any] struct {
	value     V
	hasValue  bool
	err       error
	fetchedAt time.Time
	checkedAt time.Time // last landing, success or error
	stale     bool      // set by Invalidate

	inFlight    int
	retries     int // retries used by the last landed fetch
	issued      uint64
	landed      uint64
	invalidated uint64 // sequence taken by the last Invalidate

	subs     map[uint64]func(Snapshot[V])
	stopPoll context.CancelFunc
}

// Resource is a keyed cache with a staleness window, background polling while
// subscribed, retry on failure, per-key request de-duplication and
// out-of-order result discarding.
type Resource[K comparable, V any] struct {
	name     string
	policy   Policy
	fetch    FetchFunc[K, V]
	enabled  func(K) bool
	keyStr   func(K) string
	onUpdate func(K, V)
	rec      Recorder
	now      func() time.Time
	log      *slog.Logger

	group singleflight.Group
	seq   atomic.Uint64
	subID atomic.Uint64

	mu       sync.Mutex
	notifyMu sync.Mutex
	entries  map[K]*entry[V]
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a resource from cfg.
func New[K comparable, V any](cfg Config[K, V]) *Resource[K, V] {
	if cfg.Fetch == nil {
		panic("cache: Config.Fetch is required")
	}
	r := &Resource[K, V]{
		name:     cfg.Name,
		policy:   cfg.Policy,
		fetch:    cfg.Fetch,
		enabled:  cfg.Enabled,
		keyStr:   cfg.KeyString,
		onUpdate: cfg.OnUpdate,
		rec:      cfg.Recorder,
		now:      cfg.Now,
		log:      cfg.Logger,
		entries:  make(map[K]*entry[V]),
	}
	if r.enabled == nil {
		r.enabled = func(K) bool { return true }
	}
	if r.keyStr == nil {
		r.keyStr = func(k K) string { return fmt.Sprint(k) }
	}
	if r.rec == nil {
		r.rec = nopRecorder{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = slog.Default().With("module", "cache")
	}
	r.log = r.log.With("resource", r.name)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Name returns the resource name used in logs and metrics.
func (r *Resource[K, V]) Name() string { return r.name }

// Policy returns the resource policy.
func (r *Resource[K, V]) Policy() Policy { return r.policy }

// Get returns the current entry without blocking. A missing or stale entry
// triggers a background fetch unless one is already running.
func (r *Resource[K, V]) Get(key K) Snapshot[V] {
	if !r.enabled(key) {
		return Snapshot[V]{}
	}

	r.mu.Lock()
	e := r.entries[key]
	var snap Snapshot[V]
	need := true
	if e != nil {
		snap = r.snapshotLocked(e)
		need = snap.Stale && e.inFlight == 0
	}
	r.mu.Unlock()

	if need {
		r.load(key, false)
		snap.IsLoading = true
	}
	return snap
}

// Peek returns the current entry without triggering any fetch.
func (r *Resource[K, V]) Peek(key K) Snapshot[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entries[key]; e != nil {
		return r.snapshotLocked(e)
	}
	return Snapshot[V]{}
}

// Fetch returns a fresh cached value or waits for the shared fetch. When
// that fetch fails and a value is cached, the value comes back with a
// *StaleError.
func (r *Resource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	if !r.enabled(key) {
		return zero, ErrDisabled
	}

	r.mu.Lock()
	if e := r.entries[key]; e != nil && e.hasValue && !r.isStaleLocked(e) {
		v := e.value
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	return r.wait(ctx, key, r.load(key, false))
}

// Refetch forces a fetch, joining one that is already in flight.
func (r *Resource[K, V]) Refetch(ctx context.Context, key K) (V, error) {
	var zero V
	if !r.enabled(key) {
		return zero, ErrDisabled
	}
	return r.wait(ctx, key, r.load(key, false))
}

// Invalidate marks the entry stale. With subscribers present it starts an
// immediate refetch that supersedes any fetch already in flight; otherwise
// the next access refetches. A fetch issued before the call does not clear
// the mark when it lands.
func (r *Resource[K, V]) Invalidate(key K) {
	r.mu.Lock()
	e := r.entries[key]
	if e == nil {
		r.mu.Unlock()
		return
	}
	e.stale = true
	e.invalidated = r.seq.Add(1)
	subscribed := len(e.subs) > 0
	r.mu.Unlock()

	if subscribed && r.enabled(key) {
		r.log.Debug("Invalidated with subscribers, refetching", slog.String("key", r.keyStr(key)))
		r.load(key, true)
	}
}

// Set publishes a value obtained outside the fetch path (e.g. a stream push).
// Any fetch issued before it is discarded when it lands.
func (r *Resource[K, V]) Set(key K, v V) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	e := r.entryLocked(key)
	seq := r.seq.Add(1)
	e.issued = max(e.issued, seq)
	e.landed = seq
	now := r.now()
	e.value, e.hasValue, e.err = v, true, nil
	e.fetchedAt, e.checkedAt, e.stale = now, now, false
	snap, listeners := r.snapshotLocked(e), r.listenersLocked(e)
	r.mu.Unlock()

	r.notify(key, snap, listeners)
}

// Subscribe registers fn for updates on key and holds the entry's poll timer
// while at least one subscriber remains. fn may be nil. The returned function
// is safe to call more than once.
func (r *Resource[K, V]) Subscribe(key K, fn func(Snapshot[V])) (unsubscribe func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}
	e := r.entryLocked(key)
	id := r.subID.Add(1)
	e.subs[id] = fn
	if len(e.subs) == 1 && r.policy.RefetchInterval > 0 && r.enabled(key) {
		r.startPollLocked(key, e)
	}
	need := r.enabled(key) && r.isStaleLocked(e) && e.inFlight == 0
	r.mu.Unlock()

	if need {
		r.load(key, false)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(e.subs, id)
			if len(e.subs) == 0 && e.stopPoll != nil {
				e.stopPoll()
				e.stopPoll = nil
				r.log.Debug("Polling stopped", slog.String("key", r.keyStr(key)))
			}
		})
	}
}

// Subscribers returns the subscriber count for key.
func (r *Resource[K, V]) Subscribers(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entries[key]; e != nil {
		return len(e.subs)
	}
	return 0
}

// Polling reports whether key currently has a running poll timer.
func (r *Resource[K, V]) Polling(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[key]
	return e != nil && e.stopPoll != nil
}

// Remove discards the entry for key and stops its poll timer.
// A fetch still in flight for it is discarded when it lands.
func (r *Resource[K, V]) Remove(key K) {
	r.mu.Lock()
	if e := r.entries[key]; e != nil {
		if e.stopPoll != nil {
			e.stopPoll()
		}
		delete(r.entries, key)
	}
	r.mu.Unlock()
	r.group.Forget(r.keyStr(key))
}

// Close stops every poll timer, cancels in-flight fetches and waits for them.
func (r *Resource[K, V]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, e := range r.entries {
		if e.stopPoll != nil {
			e.stopPoll()
			e.stopPoll = nil
		}
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// load starts (or joins) the flight for key. force forgets the current flight
// so a new one is issued.
func (r *Resource[K, V]) load(key K, force bool) <-chan singleflight.Result {
	sk := r.keyStr(key)

	r.mu.Lock()
	e := r.entries[key]
	joined := !force && e != nil && e.inFlight > 0
	r.mu.Unlock()

	if joined {
		r.rec.RecordDedup(r.name)
	}
	if force {
		r.group.Forget(sk)
	}
	return r.group.DoChan(sk, func() (any, error) {
		return r.execute(key)
	})
}

func (r *Resource[K, V]) wait(ctx context.Context, key K, ch <-chan singleflight.Result) (V, error) {
	select {
	case <-ctx.Done():
		return r.lastGood(key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return r.lastGood(key, res.Err)
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// lastGood pairs err with the cached value when there is one.
func (r *Resource[K, V]) lastGood(key K, err error) (V, error) {
	var zero V
	if errors.Is(err, ErrClosed) {
		return zero, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entries[key]; e != nil && e.hasValue {
		return e.value, &StaleError{Err: err, FetchedAt: e.fetchedAt}
	}
	return zero, err
}

func (r *Resource[K, V]) execute(key K) (any, error) {
	var zero V

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return zero, ErrClosed
	}
	e := r.entryLocked(key)
	seq := r.seq.Add(1)
	e.issued = seq
	e.inFlight++
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	start := r.now()
	v, retries, err := r.fetchWithRetry(r.ctx, key)
	if err != nil {
		r.rec.RecordFetchError(r.name)
	} else {
		r.rec.RecordFetch(r.name, r.now().Sub(start))
	}
	return r.land(key, e, seq, v, retries, err)
}

func (r *Resource[K, V]) fetchWithRetry(ctx context.Context, key K) (V, int, error) {
	var zero V
	for attempt := 0; ; attempt++ {
		v, err := r.fetch(ctx, key)
		if err == nil {
			return v, attempt, nil
		}
		if attempt >= r.policy.Retry || !shouldRetry(err) {
			r.log.Warn("Fetch failed",
				slog.String("key", r.keyStr(key)),
				slog.Int("attempts", attempt+1),
				slog.Any("error", err),
			)
			return zero, attempt, err
		}

		delay := r.policy.retryDelay(attempt)
		r.rec.RecordRetry(r.name)
		r.log.Debug("Retrying fetch",
			slog.String("key", r.keyStr(key)),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// land applies a completed fetch unless a newer result already landed or the
// entry was removed. It returns what the waiters should see.
func (r *Resource[K, V]) land(key K, e *entry[V], seq uint64, v V, retries int, err error) (V, error) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	e.inFlight--
	if r.entries[key] != e || seq < e.landed {
		cur, curErr := e.value, e.err
		hasValue := e.hasValue
		r.mu.Unlock()
		r.rec.RecordDiscard(r.name)
		r.log.Debug("Discarded out-of-order result", slog.String("key", r.keyStr(key)), slog.Uint64("seq", seq))
		if hasValue {
			return cur, nil
		}
		if err == nil && curErr != nil {
			return cur, curErr
		}
		return v, err
	}

	now := r.now()
	e.landed = seq
	e.checkedAt = now
	e.retries = retries
	if err != nil {
		// Keep the last good value next to the error.
		e.err = err
	} else {
		e.value, e.hasValue, e.err = v, true, nil
		e.fetchedAt = now
		if seq > e.invalidated {
			e.stale = false
		}
	}
	snap, listeners := r.snapshotLocked(e), r.listenersLocked(e)
	r.mu.Unlock()

	r.notify(key, snap, listeners)
	return v, err
}

func (r *Resource[K, V]) notify(key K, snap Snapshot[V], listeners []func(Snapshot[V])) {
	if snap.Err == nil && snap.HasValue && r.onUpdate != nil {
		r.onUpdate(key, snap.Value)
	}
	for _, fn := range listeners {
		fn(snap)
	}
}

func (r *Resource[K, V]) startPollLocked(key K, e *entry[V]) {
	ctx, cancel := context.WithCancel(r.ctx)
	e.stopPoll = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("Polling panic recovered", slog.Any("panic", rec))
			}
		}()

		ticker := time.NewTicker(r.policy.RefetchInterval)
		defer ticker.Stop()

		r.log.Debug("Polling started",
			slog.String("key", r.keyStr(key)),
			slog.Duration("interval", r.policy.RefetchInterval),
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.wait(ctx, key, r.load(key, false)); err != nil && ctx.Err() == nil {
					r.log.Debug("Poll fetch failed", slog.String("key", r.keyStr(key)), slog.Any("error", err))
				}
			}
		}
	}()
}

func (r *Resource[K, V]) entryLocked(key K) *entry[V] {
	e := r.entries[key]
	if e == nil {
		e = &entry[V]{subs: make(map[uint64]func(Snapshot[V]))}
		r.entries[key] = e
	}
	return e
}

func (r *Resource[K, V]) isStaleLocked(e *entry[V]) bool {
	if e.stale || e.checkedAt.IsZero() {
		return true
	}
	return r.now().Sub(e.checkedAt) >= r.policy.StaleTime
}

func (r *Resource[K, V]) snapshotLocked(e *entry[V]) Snapshot[V] {
	return Snapshot[V]{
		Value:     e.value,
		HasValue:  e.hasValue,
		IsLoading: e.inFlight > 0,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		Stale:     r.isStaleLocked(e),
		Retries:   e.retries,
	}
}

func (r *Resource[K, V]) listenersLocked(e *entry[V]) []func(Snapshot[V]) {
	out := make([]func(Snapshot[V]), 0, len(e.subs))
	for _, fn := range e.subs {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

// shouldRetry stops on cancellation, malformed payloads and errors that report
// themselves non-retriable.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrMalformedPayload) {
		return false
	}
	var re domain.RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return true
}

type nopRecorder struct{}

func (nopRecorder) RecordFetch(string, time.Duration) {}
func (nopRecorder) RecordFetchError(string)           {}
func (nopRecorder) RecordRetry(string)                {}
func (nopRecorder) RecordDedup(string)                {}
func (nopRecorder) RecordDiscard(string)              {}
