package stream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrNoLoad is returned when no load was started.
	ErrNoLoad = errors.New("stream: nothing loaded")
	// ErrLoadInProgress is returned when an operation needs an idle load.
	ErrLoadInProgress = errors.New("stream: load in progress")
	// ErrSuperseded is returned when the loaded store has since been
	// replaced, e.g. by compaction.
	ErrSuperseded = errors.New("stream: store replaced since load")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stream: closed")
)

// WriterOwner is the lease owner name the streamer uses on its stores.
const WriterOwner = "stream"

const tracerName = "github.com/hupe1980/pcedit/stream"

// Streamer loads tile lists into freshly allocated stores.
type Streamer struct {
	source  tilesource.Source
	bus     *event.Bus
	opts    Options
	tracer  trace.Tracer
	limiter *rate.Limiter

	mu     sync.Mutex
	cur    *run
	closed bool
	unsub  func()
}

type run struct {
	signature string
	datasetID string
	tiles     []tile.Tile // ordered by BaseIndex
	store     *pointbuf.Store

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	running    bool
	superseded bool
	prefix     *Prefix
	failed     map[int]error
	loaded     int
}

type result struct {
	index   int
	payload *tile.Payload
	err     error
}

// New creates a streamer reading from source and publishing on bus.
func New(source tilesource.Source, bus *event.Bus, opts Options) *Streamer {
	opts.applyDefaults()
	if bus == nil {
		bus = event.NewBus()
	}
	s := &Streamer{
		source: source,
		bus:    bus,
		opts:   opts,
		tracer: otel.Tracer(tracerName),
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(opts.RateLimit, opts.Burst)
	}
	s.unsub = bus.StoreReplaced.Subscribe(s.onStoreReplaced)
	return s
}

// Load starts streaming tiles of a dataset into a new store and returns it
// immediately. Loading the list that is already current is a no-op that
// returns the current store; any other list cancels the running load.
// ctx bounds the lifetime of the load.
func (s *Streamer) Load(ctx context.Context, datasetID string, tiles []tile.Tile) (*pointbuf.Store, error) {
	sig := tile.Signature(tiles)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if cur := s.cur; cur != nil && cur.signature == sig && cur.datasetID == datasetID {
		s.mu.Unlock()
		return cur.store, nil
	}

	total := tile.TotalPoints(tiles)
	if err := tile.Validate(tiles, total); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	store := pointbuf.New(total, s.opts.StoreOptions...)
	release, err := store.AcquireWriter(WriterOwner)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	sorted := tile.SortByBase(tiles)
	r := &run{
		signature: sig,
		datasetID: datasetID,
		tiles:     sorted,
		store:     store,
		prefix:    NewPrefix(sorted),
		failed:    make(map[int]error),
	}
	passCtx, cancel, done := r.startPass(ctx)

	old := s.cur
	s.cur = r
	s.mu.Unlock()

	if old != nil {
		old.stop()
	}

	s.opts.Logger.Info("loading dataset",
		"dataset", datasetID,
		"tiles", len(tiles),
		"points", total,
		"workers", s.opts.Workers,
	)

	s.bus.StoreReplaced.Publish(event.StoreReplaced{Store: store, Bounds: pointbuf.EmptyBox()})
	s.bus.LoadProgress.Publish(r.progress())

	go s.pass(passCtx, cancel, r, indexRange(len(sorted)), release, done)
	return store, nil
}

// RetryFailed re-queues every failed tile of the current load into the same
// store and returns how many were queued.
func (s *Streamer) RetryFailed(ctx context.Context) (int, error) {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return 0, ErrNoLoad
	}

	r.mu.Lock()
	switch {
	case r.running:
		r.mu.Unlock()
		return 0, ErrLoadInProgress
	case r.superseded:
		r.mu.Unlock()
		return 0, ErrSuperseded
	case len(r.failed) == 0:
		r.mu.Unlock()
		return 0, nil
	}
	indices := make([]int, 0, len(r.failed))
	for i := range r.failed {
		indices = append(indices, i)
	}
	slices.Sort(indices)
	r.mu.Unlock()

	release, err := r.store.AcquireWriter(WriterOwner)
	if err != nil {
		return 0, err
	}
	passCtx, cancel, done := r.startPass(ctx)

	s.opts.Logger.Info("retrying failed tiles", "dataset", r.datasetID, "tiles", len(indices))
	go s.pass(passCtx, cancel, r, indices, release, done)
	return len(indices), nil
}

// Wait blocks until the current load pass finishes or ctx is done.
func (s *Streamer) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress returns a snapshot of the current load.
func (s *Streamer) Progress() event.LoadProgress {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return event.LoadProgress{Done: true}
	}
	return r.progress()
}

// Store returns the store of the current load, or nil.
func (s *Streamer) Store() *pointbuf.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.store
}

// Failed returns the failure cause of every tile that did not load, keyed
// by tile id.
func (s *Streamer) Failed() map[string]error {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()

	out := make(map[string]error)
	if r == nil {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, err := range r.failed {
		out[r.tiles[i].ID] = err
	}
	return out
}

// Close cancels the current load and waits for it to stop.
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	r := s.cur
	s.mu.Unlock()

	s.unsub()
	if r != nil {
		r.stop()
		r.mu.Lock()
		done := r.done
		r.mu.Unlock()
		<-done
	}
	return nil
}

func (s *Streamer) onStoreReplaced(ev event.StoreReplaced) {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil || ev.Store == r.store {
		return
	}
	r.mu.Lock()
	r.superseded = true
	r.mu.Unlock()
}

func (s *Streamer) pass(ctx context.Context, cancel context.CancelFunc, r *run, indices []int, release func(), done chan struct{}) {
	defer close(done)
	defer release()
	defer cancel()

	jobs := make(chan int)
	results := make(chan result)

	go func() {
		defer close(jobs)
		for _, i := range indices {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var g errgroup.Group
	for w := 0; w < min(s.opts.Workers, len(indices)); w++ {
		g.Go(func() error {
			for i := range jobs {
				p, err := s.fetch(ctx, r.datasetID, r.tiles[i])
				select {
				case results <- result{index: i, payload: p, err: err}:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	for res := range results {
		s.commit(ctx, r, res)
	}

	r.mu.Lock()
	r.running = false
	failed := len(r.failed)
	r.mu.Unlock()

	if ctx.Err() != nil {
		s.opts.Logger.Debug("load cancelled", "dataset", r.datasetID)
		return
	}

	p := r.progress()
	if failed > 0 {
		s.opts.Logger.Warn("load finished with failed tiles",
			"dataset", r.datasetID,
			"loaded", p.TilesLoaded,
			"failed", failed,
			"renderable", p.Renderable,
		)
	} else {
		s.opts.Logger.Info("load finished", "dataset", r.datasetID, "points", p.Renderable)
	}
	s.bus.LoadProgress.Publish(p)
}

// commit runs on the pass goroutine only, which holds the writer lease.
func (s *Streamer) commit(ctx context.Context, r *run, res result) {
	t := r.tiles[res.index]

	err := res.err
	if err == nil {
		err = s.write(r.store, t, res.payload)
	}

	r.mu.Lock()
	if err != nil {
		r.failed[res.index] = err
	} else {
		delete(r.failed, res.index)
		r.loaded++
		r.prefix.MarkLoaded(res.index)
	}
	r.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, tile.ErrMalformed):
		s.opts.Logger.Warn("skipping malformed tile", "dataset", r.datasetID, "tile", t.ID, "error", err)
	case err != nil:
		s.opts.Logger.Warn("skipping tile after fetch failure", "dataset", r.datasetID, "tile", t.ID, "error", err)
	default:
		s.opts.Observer.OnTileCommitted(res.payload.Count)
	}
	s.bus.LoadProgress.Publish(r.progress())
}

func (s *Streamer) write(store *pointbuf.Store, t tile.Tile, p *tile.Payload) error {
	// A short tile would leave indices inside the renderable prefix unfilled.
	if p.Count != t.Points {
		return fmt.Errorf("%w: tile %s holds %d points, catalog lists %d", tile.ErrMalformed, t.ID, p.Count, t.Points)
	}
	return store.WriteBlock(t.BaseIndex, p.Positions, p.RGB, p.Intensity)
}

func (s *Streamer) fetch(ctx context.Context, datasetID string, t tile.Tile) (*tile.Payload, error) {
	ctx, span := s.tracer.Start(ctx, "stream.FetchTile", trace.WithAttributes(
		attribute.String("dataset.id", datasetID),
		attribute.String("tile.id", t.ID),
		attribute.Int("tile.points", t.Points),
	))
	defer span.End()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.InitialBackoff
	bo.MaxInterval = s.opts.MaxBackoff

	start := time.Now()
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		data, err := s.source.Fetch(ctx, datasetID, t)
		if err != nil && !tilesource.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			s.opts.Observer.OnRetry(t.ID)
			s.opts.Logger.Debug("retrying tile fetch", "tile", t.ID, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		var fe *tilesource.FetchError
		if !errors.As(err, &fe) {
			err = &tilesource.FetchError{TileID: t.ID, Err: err}
		}
	}
	s.opts.Observer.OnTileFetched(time.Since(start), len(data), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	p, err := tile.DecodeTile(t, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed tile")
		return nil, err
	}
	span.SetAttributes(attribute.Int("tile.bytes", len(data)))
	return p, nil
}

func (r *run) startPass(parent context.Context) (context.Context, context.CancelFunc, chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.running = true
	r.mu.Unlock()
	return ctx, cancel, done
}

func (r *run) stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *run) progress() event.LoadProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return event.LoadProgress{
		Signature:   r.signature,
		Store:       r.store,
		TilesLoaded: r.loaded,
		TilesFailed: len(r.failed),
		TilesTotal:  len(r.tiles),
		PointsTotal: r.store.Len(),
		Renderable:  r.prefix.End(),
		Done:        !r.running,
	}
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
