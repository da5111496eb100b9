package pcedit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/time/rate"

	"github.com/hupe1980/pcedit/camera"
	"github.com/hupe1980/pcedit/config"
	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/oplog"
	"github.com/hupe1980/pcedit/overlay"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/hupe1980/pcedit/render"
	"github.com/hupe1980/pcedit/selection"
	"github.com/hupe1980/pcedit/stream"
	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
)

// Editor wires streaming, camera framing, selection, session commits and
// rendering state around one point store at a time.
//
// Editor is safe for concurrent use.
type Editor struct {
	logger  *Logger
	metrics MetricsCollector
	bus     *event.Bus
	backend oplog.Backend
	catalog tilesource.Catalog
	ml      *overlay.Client

	cache     *tilesource.CachingSource
	streamer  *stream.Streamer
	camera    *camera.Initializer
	selection *selection.Engine
	view      *render.State
	scheduler *render.Scheduler

	// editMu serialises commits, overlay applies and compaction.
	editMu sync.Mutex

	// ctx ends deferred compactions on Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	cfg       config.Config
	datasetID string
	store     *pointbuf.Store
	log       *oplog.Log
	previewID string
	preview   []uint32 // original indices
	// compactPending is set while a compaction waits for a load pass.
	compactPending bool
	closed         bool
	unsubs    []func()
}

// New creates an editor that loads tiles from source.
func New(source tilesource.Source, optFns ...Option) (*Editor, error) {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
		config:  config.Default(),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	if o.bus == nil {
		o.bus = event.NewBus()
	}
	if o.catalog == nil {
		if c, ok := source.(tilesource.Catalog); ok {
			o.catalog = c
		}
	}

	e := &Editor{
		logger:  o.logger,
		metrics: o.metrics,
		bus:     o.bus,
		backend: o.backend,
		catalog: o.catalog,
		ml:      o.ml,
		cfg:     o.config,
		view:    render.NewState(),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	cfg := o.config
	if cfg.Cache.Enabled {
		cache, err := tilesource.NewCachingSource(source, tilesource.CacheOptions{
			Path:   cfg.Cache.Path,
			Logger: e.slog("cache"),
		})
		if err != nil {
			return nil, fmt.Errorf("open tile cache: %w", err)
		}
		e.cache = cache
		source = cache
	}

	e.streamer = stream.New(source, e.bus, stream.Options{
		Workers:        cfg.Stream.Workers,
		MaxAttempts:    cfg.Stream.MaxAttempts,
		InitialBackoff: cfg.Stream.InitialBackoff,
		MaxBackoff:     cfg.Stream.MaxBackoff,
		RateLimit:      rate.Limit(cfg.Stream.RequestsPerSecond),
		StoreOptions:   o.storeOptions,
		Logger:         e.slog("stream"),
		Observer:       streamObserver{m: e.metrics},
	})
	e.camera = camera.NewInitializer(e.bus, camera.InitializerOptions{
		Threshold:     cfg.CameraThreshold,
		FarMultiplier: cfg.CameraFarMultiplier,
		Logger:        e.slog("camera"),
	})
	e.selection = selection.New(e.bus, selection.Options{
		BrushRadius: cfg.BrushRadius,
		Logger:      e.slog("selection"),
	})
	e.scheduler = render.NewScheduler(o.frame, o.render)

	if err := e.applyView(cfg); err != nil {
		_ = e.Close()
		return nil, err
	}

	e.unsubs = append(e.unsubs,
		e.bus.StoreReplaced.Subscribe(e.onStoreReplaced),
		e.bus.LoadProgress.Subscribe(e.onProgress),
		e.bus.CameraFramed.Subscribe(func(event.CameraFramed) { e.scheduler.Request() }),
		e.bus.SelectionReset.Subscribe(func(event.SelectionReset) {
			// The reset cleared the overlay tint, so the preview is gone too.
			e.clearPreview()
			e.scheduler.Request()
		}),
	)
	return e, nil
}

func (e *Editor) slog(component string) *slog.Logger {
	return e.logger.With("component", component)
}

func (e *Editor) onStoreReplaced(ev event.StoreReplaced) {
	e.mu.Lock()
	e.store = ev.Store
	e.mu.Unlock()

	e.view.SetRenderable(ev.Renderable)
	e.view.SetBounds(ev.Bounds)
	e.scheduler.Request()
}

func (e *Editor) onProgress(p event.LoadProgress) {
	store := e.Store()
	if store == nil || p.Store != store {
		return
	}
	e.view.SetRenderable(p.Renderable)
	if p.Done {
		e.view.SetBounds(store.Bounds(p.Renderable))
		e.logger.Info("load finished",
			"dataset", e.DatasetID(),
			"tiles", p.TilesLoaded,
			"failed", p.TilesFailed,
			"renderable", p.Renderable,
		)
	}
	e.scheduler.Request()
}

// Bus returns the event bus shared by the editor's components.
func (e *Editor) Bus() *event.Bus { return e.bus }

// View returns the render state.
func (e *Editor) View() *render.State { return e.view }

// Store returns the current point store, or nil before the first load.
func (e *Editor) Store() *pointbuf.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// DatasetID returns the dataset of the current load.
func (e *Editor) DatasetID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.datasetID
}

// Config returns a copy of the active configuration.
func (e *Editor) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Load streams a dataset into a fresh store. A nil tile list is looked up
// in the catalog. Loading another dataset closes the open session. ctx
// bounds the lifetime of the load, not just this call.
func (e *Editor) Load(ctx context.Context, datasetID string, tiles []tile.Tile) error {
	if e.isClosed() {
		return ErrClosed
	}
	if tiles == nil {
		if e.catalog == nil {
			return ErrNoCatalog
		}
		var err error
		if tiles, err = e.catalog.Tiles(ctx, datasetID); err != nil {
			e.logger.LogLoad(ctx, datasetID, 0, 0, err)
			return translateError(err)
		}
	}

	e.mu.Lock()
	switched := e.datasetID != datasetID
	e.mu.Unlock()
	if switched {
		e.closeSession()
	}

	if _, err := e.streamer.Load(ctx, datasetID, tiles); err != nil {
		e.logger.LogLoad(ctx, datasetID, len(tiles), 0, err)
		return translateError(err)
	}

	e.mu.Lock()
	e.datasetID = datasetID
	e.mu.Unlock()
	if switched {
		e.clearPreview()
	}

	e.logger.LogLoad(ctx, datasetID, len(tiles), tile.TotalPoints(tiles), nil)
	return nil
}

// Wait blocks until the current load pass finishes or ctx is done.
func (e *Editor) Wait(ctx context.Context) error {
	return e.streamer.Wait(ctx)
}

// Progress returns a snapshot of the current load.
func (e *Editor) Progress() event.LoadProgress {
	return e.streamer.Progress()
}

// Failed returns the failure cause of every tile that did not load.
func (e *Editor) Failed() map[string]error {
	out := e.streamer.Failed()
	for id, err := range out {
		out[id] = translateError(err)
	}
	return out
}

// RetryFailed re-queues the failed tiles of the current load.
func (e *Editor) RetryFailed(ctx context.Context) (int, error) {
	n, err := e.streamer.RetryFailed(ctx)
	return n, translateError(err)
}

// OpenSession makes sessionID the active session of the loaded dataset. An
// empty id creates a new session. Opening an existing session waits for the
// load and replays its history into the store when the backend keeps one.
// Pending selections are discarded when the session changes.
func (e *Editor) OpenSession(ctx context.Context, sessionID string) error {
	if e.backend == nil {
		return ErrNoBackend
	}
	datasetID := e.DatasetID()
	if datasetID == "" {
		return ErrNoStore
	}

	opts := oplog.Options{ChunkSize: e.Config().Commit.ChunkSize, Logger: e.slog("oplog")}

	var log *oplog.Log
	if sessionID == "" {
		s, err := e.backend.CreateSession(ctx, datasetID)
		if err != nil {
			return translateError(err)
		}
		log = oplog.New(e.backend, s, opts)
	} else {
		var err error
		if log, err = oplog.Open(ctx, e.backend, datasetID, sessionID, opts); err != nil {
			return translateError(err)
		}
		if err := e.replay(ctx, log); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.log = log
	e.mu.Unlock()

	e.logger.Info("session opened", "dataset", datasetID, "session", log.SessionID(), "version", log.Version())
	e.bus.SessionChanged.Publish(event.SessionChanged{
		DatasetID: datasetID,
		SessionID: log.SessionID(),
		Version:   log.Version(),
	})
	return nil
}

func (e *Editor) replay(ctx context.Context, log *oplog.Log) error {
	history, ok := e.backend.(oplog.History)
	if !ok {
		return nil
	}
	records, err := history.Operations(ctx, log.DatasetID(), log.SessionID())
	if err != nil {
		return translateError(err)
	}
	if len(records) == 0 {
		return nil
	}
	if err := e.streamer.Wait(ctx); err != nil {
		return err
	}
	store := e.Store()
	if store == nil {
		return ErrNoStore
	}

	deleted := oplog.Replay(records)
	indices := make([]int, 0, deleted.Len())
	deleted.ForEach(func(id uint32) bool {
		if i, ok := store.IndexOf(id); ok {
			indices = append(indices, i)
		}
		return true
	})
	store.ApplyStatus(indices, pointbuf.StatusDeleted)
	e.logger.Debug("session replayed", "session", log.SessionID(), "operations", len(records), "deleted", len(indices))
	e.scheduler.Request()
	return nil
}

func (e *Editor) closeSession() {
	e.mu.Lock()
	had := e.log != nil
	e.log = nil
	e.mu.Unlock()
	if had {
		e.bus.SessionChanged.Publish(event.SessionChanged{})
	}
}

// Session returns the active session id and version.
func (e *Editor) Session() (id string, version uint64, ok bool) {
	e.mu.Lock()
	log := e.log
	e.mu.Unlock()
	if log == nil {
		return "", 0, false
	}
	return log.SessionID(), log.Version(), true
}

// Refresh re-reads the version of a stale session so commits can resume.
// Pending selections are kept.
func (e *Editor) Refresh(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	log := e.log
	e.mu.Unlock()
	if log == nil {
		return 0, ErrNoSession
	}
	v, err := log.Refresh(ctx)
	return v, translateError(err)
}

// SetTool activates a tool.
func (e *Editor) SetTool(t event.Tool) {
	e.bus.ToolChanged.Publish(event.ToolChanged{Tool: t})
}

// SetView sets the camera used for picking. targetDistance is the distance
// from the camera to the point it orbits and scales the brush radius.
func (e *Editor) SetView(view, projection mgl32.Mat4, width, height int, targetDistance float32) {
	e.selection.SetCamera(selection.Camera{
		View:       view,
		Projection: projection,
		Width:      width,
		Height:     height,
		Distance:   targetDistance,
	})
}

// Camera returns the framed camera pose of the current load.
func (e *Editor) Camera() (camera.Pose, bool) {
	return e.camera.Pose()
}

// PointerDown starts brushing and returns how many points were marked.
func (e *Editor) PointerDown(p selection.Pointer) (int, error) {
	return e.brush(func() (int, error) { return e.selection.PointerDown(p) })
}

// PointerMove continues brushing.
func (e *Editor) PointerMove(p selection.Pointer) (int, error) {
	return e.brush(func() (int, error) { return e.selection.PointerMove(p) })
}

// PointerUp ends brushing.
func (e *Editor) PointerUp() { e.selection.PointerUp() }

// PointerLeave ends brushing.
func (e *Editor) PointerLeave() { e.selection.Leave() }

// PointerCancel ends brushing.
func (e *Editor) PointerCancel() { e.selection.Cancel() }

func (e *Editor) brush(fn func() (int, error)) (int, error) {
	start := time.Now()
	n, err := fn()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.metrics.RecordBrush(n, time.Since(start))
		e.scheduler.Request()
	}
	return n, nil
}

// Select marks points by store index with a brush tool.
func (e *Editor) Select(t event.Tool, indices []int) (int, error) {
	if e.Store() == nil {
		return 0, ErrNoStore
	}
	n, err := e.selection.Select(t, indices)
	if n > 0 {
		e.scheduler.Request()
	}
	return n, err
}

// Pending returns the number of points marked for deletion and restoration.
func (e *Editor) Pending() (toDelete, toRestore int) {
	return e.selection.PendingCount()
}

// ResetSelection discards pending selections and the ML overlay.
func (e *Editor) ResetSelection() int {
	e.clearPreview()
	return e.selection.Reset()
}

func (e *Editor) clearPreview() {
	e.mu.Lock()
	e.previewID, e.preview = "", nil
	e.mu.Unlock()
}

// Commit submits the pending selection to the active session. Points change
// status as soon as the operation carrying them is accepted. When every
// operation is accepted the deleted points are compacted away. On failure
// the error is an *ErrCommit and the remaining points stay selected.
func (e *Editor) Commit(ctx context.Context) (oplog.Result, error) {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	log, store, err := e.editTarget()
	if err != nil {
		return oplog.Result{}, err
	}

	del, res := e.selection.Pending()
	start := time.Now()
	result, err := log.Commit(ctx, origins(store, del), origins(store, res), e.applier(store))
	e.finishCommit(ctx, log, result, time.Since(start), err)
	if err != nil {
		return result, translateError(err)
	}
	e.compactDeleted(ctx)
	return result, nil
}

// PreviewOverlay requests an ML preview, aggregates the clusters of the
// given classes and paints them as overlay. nil classes uses the classes
// the preview selected. It returns the number of painted points.
func (e *Editor) PreviewOverlay(ctx context.Context, req overlay.PreviewRequest, classes []string) (int, error) {
	if e.ml == nil {
		return 0, ErrNoMLClient
	}
	store := e.Store()
	if store == nil {
		return 0, ErrNoStore
	}

	p, err := e.ml.CreatePreview(ctx, req)
	if err != nil {
		e.logger.LogOverlay(ctx, "", 0, err)
		return 0, err
	}
	detail, err := e.ml.PreviewDetail(ctx, p.ID)
	if err != nil {
		e.logger.LogOverlay(ctx, p.ID, 0, err)
		return 0, err
	}

	indices := overlay.Aggregate(detail, classes)
	n := overlay.Paint(store, indices)

	e.mu.Lock()
	e.previewID, e.preview = p.ID, indices
	e.mu.Unlock()

	e.logger.LogOverlay(ctx, p.ID, n, nil)
	e.scheduler.Request()
	return n, nil
}

// ApplyOverlay deletes the points of the painted preview through the active
// session, clears the overlay and compacts the store.
func (e *Editor) ApplyOverlay(ctx context.Context) (oplog.Result, error) {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	e.mu.Lock()
	indices := e.preview
	e.mu.Unlock()
	if len(indices) == 0 {
		return oplog.Result{}, ErrNoPreview
	}
	log, store, err := e.editTarget()
	if err != nil {
		return oplog.Result{}, err
	}

	start := time.Now()
	result, err := overlay.Apply(ctx, log, indices, e.applier(store))
	e.finishCommit(ctx, log, result, time.Since(start), err)
	if err != nil {
		return result, translateError(err)
	}
	store.SetOverlay(nil)
	e.clearPreview()
	e.compactDeleted(ctx)
	return result, nil
}

func (e *Editor) editTarget() (*oplog.Log, *pointbuf.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return nil, nil, ErrClosed
	case e.store == nil:
		return nil, nil, ErrNoStore
	case e.log == nil:
		return nil, nil, ErrNoSession
	}
	return e.log, e.store, nil
}

// applier updates the store for each accepted operation and drops its
// points from the pending selection.
func (e *Editor) applier(store *pointbuf.Store) oplog.ApplyFunc {
	return func(op oplog.Op, _ oplog.Record) {
		indices := make([]int, 0, len(op.Indices))
		for _, id := range op.Indices {
			if i, ok := store.IndexOf(id); ok {
				indices = append(indices, i)
			}
		}
		st := pointbuf.StatusAlive
		if op.Action == oplog.ActionDelete {
			st = pointbuf.StatusDeleted
		}
		store.ApplyStatus(indices, st)
		e.selection.Forget(indices)
		e.scheduler.Request()
	}
}

func (e *Editor) finishCommit(ctx context.Context, log *oplog.Log, res oplog.Result, took time.Duration, err error) {
	accepted, indices, remaining := res.Accepted, res.Indices, 0
	version := log.Version()
	var ce *oplog.CommitError
	if errors.As(err, &ce) {
		accepted, remaining = ce.Accepted, ce.Remaining
	}

	e.metrics.RecordCommit(accepted, indices, took, err)
	e.logger.LogCommit(ctx, log.SessionID(), accepted, remaining, version, err)
	e.bus.Committed.Publish(event.Committed{
		SessionID: log.SessionID(),
		Version:   version,
		Accepted:  accepted,
		Remaining: remaining,
		Err:       err,
	})
}

func origins(store *pointbuf.Store, indices []int) []uint32 {
	out := make([]uint32, 0, len(indices))
	for _, i := range indices {
		if i < store.Len() {
			out = append(out, store.Origin(i))
		}
	}
	return out
}

// Compact waits for the current load pass, drops deleted points and makes
// the packed store current. Pending selections and the overlay move with
// their points.
func (e *Editor) Compact(ctx context.Context) (*pointbuf.CompactionResult, error) {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	if e.Store() == nil {
		return nil, ErrNoStore
	}
	if err := e.streamer.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := e.compactLocked(ctx)
	return res, translateError(err)
}

// compactDeleted compacts the store after an accepted edit. While a load
// pass holds the writer lease the compaction waits for the pass to end.
// Must be called with editMu held.
func (e *Editor) compactDeleted(ctx context.Context) {
	store := e.Store()
	if store == nil || store.CountStatus(pointbuf.StatusDeleted) == 0 {
		return
	}
	_, err := e.compactLocked(ctx)
	if errors.Is(err, pointbuf.ErrWriterBusy) {
		e.deferCompaction()
	}
}

func (e *Editor) deferCompaction() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.compactPending {
		return
	}
	e.compactPending = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.streamer.Wait(e.ctx)

		e.editMu.Lock()
		defer e.editMu.Unlock()
		e.mu.Lock()
		e.compactPending = false
		e.mu.Unlock()
		if err != nil {
			return
		}
		e.logger.Debug("running deferred compaction")
		e.compactDeleted(e.ctx)
	}()
}

// compactLocked packs the current store and makes the result current. Must
// be called with editMu held.
func (e *Editor) compactLocked(ctx context.Context) (*pointbuf.CompactionResult, error) {
	store := e.Store()
	if store == nil {
		return nil, ErrNoStore
	}

	start := time.Now()
	res, err := pointbuf.Compact(store)
	took := time.Since(start)
	if err != nil {
		e.logger.LogCompaction(ctx, 0, 0, took, translateError(err))
		return nil, err
	}

	e.bus.StoreReplaced.Publish(event.StoreReplaced{
		Store:      res.Store,
		Renderable: res.Kept,
		Bounds:     res.Bounds,
	})
	e.metrics.RecordCompaction(res.Removed, took)
	e.logger.LogCompaction(ctx, res.Removed, res.Kept, took, nil)
	return res, nil
}

// UpdateConfig applies a change to the runtime parameters. The change is
// validated first; an invalid change leaves the configuration untouched.
// Stream, cache and API settings only take effect for new editors.
func (e *Editor) UpdateConfig(fn func(*config.Config)) error {
	e.mu.Lock()
	next := e.cfg
	e.mu.Unlock()

	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := e.applyView(next); err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = next
	e.mu.Unlock()
	e.scheduler.Request()
	return nil
}

func (e *Editor) applyView(c config.Config) error {
	if err := e.view.SetPointSize(c.PointSize); err != nil {
		return err
	}
	if err := e.view.SetPixelStep(c.PixelStep); err != nil {
		return err
	}
	e.selection.SetBrushRadius(c.BrushRadius)
	e.camera.SetFarMultiplier(c.CameraFarMultiplier)
	return nil
}

// Renders returns how many times the render function ran.
func (e *Editor) Renders() int64 {
	return e.scheduler.Renders()
}

func (e *Editor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close stops loading and detaches all components.
func (e *Editor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	for _, u := range unsubs {
		u()
	}
	e.scheduler.Close()
	e.selection.Close()
	e.camera.Close()

	var errs []error
	if err := e.streamer.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
