package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeDataset stores n tiles of size points each; point i has x = i.
func makeDataset(src *tilesource.MemorySource, ds string, n, size int) []tile.Tile {
	tiles := make([]tile.Tile, n)
	for k := 0; k < n; k++ {
		t := tile.Tile{ID: string(rune('a' + k)), X: k, BaseIndex: k * size, Points: size}
		pts := make([]tile.Point, size)
		for j := range pts {
			pts[j] = tile.Point{X: float32(t.BaseIndex + j), Y: 1, Z: 2, R: 50, G: 60, B: 70, Intensity: 200}
		}
		src.Put(ds, t, tile.Encode(pts))
		tiles[k] = t
	}
	return tiles
}

func testOptions() Options {
	return Options{
		Workers:        3,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func waitLoad(t *testing.T, s *Streamer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestStreamer_Load(t *testing.T) {
	src := tilesource.NewMemorySource()
	tiles := makeDataset(src, "ds", 4, 25)

	bus := event.NewBus()
	var mu sync.Mutex
	var progress []event.LoadProgress
	bus.LoadProgress.Subscribe(func(p event.LoadProgress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})

	s := New(src, bus, testOptions())
	defer s.Close()

	store, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	require.Equal(t, 100, store.Len())
	waitLoad(t, s)

	p := s.Progress()
	assert.True(t, p.Done)
	assert.Equal(t, 4, p.TilesLoaded)
	assert.Equal(t, 100, p.Renderable)
	assert.Equal(t, "", store.Writer(), "lease released after load")

	for _, i := range []int{0, 37, 99} {
		assert.Equal(t, float32(i), store.Position(i).X())
		v, ok := store.Intensity(i)
		assert.True(t, ok)
		assert.Equal(t, uint8(200), v)
	}

	mu.Lock()
	defer mu.Unlock()
	last := progress[len(progress)-1]
	assert.True(t, last.Done)
	assert.Equal(t, 100, last.Renderable)
	for k := 1; k < len(progress); k++ {
		assert.GreaterOrEqual(t, progress[k].Renderable, progress[k-1].Renderable)
	}
}

func TestStreamer_SameSignatureIsNoop(t *testing.T) {
	src := tilesource.NewMemorySource()
	tiles := makeDataset(src, "ds", 2, 10)

	bus := event.NewBus()
	replaced := 0
	bus.StoreReplaced.Subscribe(func(event.StoreReplaced) { replaced++ })

	s := New(src, bus, testOptions())
	defer s.Close()

	first, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	second, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, int64(2), src.Fetches())
}

func TestStreamer_InvalidTiles(t *testing.T) {
	s := New(tilesource.NewMemorySource(), nil, testOptions())
	defer s.Close()

	_, err := s.Load(context.Background(), "ds", []tile.Tile{
		{ID: "a", BaseIndex: 0, Points: 10},
		{ID: "b", BaseIndex: 5, Points: 10},
	})
	assert.ErrorIs(t, err, tile.ErrOverlap)
}

func TestStreamer_MalformedTileStallsPrefix(t *testing.T) {
	src := tilesource.NewMemorySource()
	tiles := makeDataset(src, "ds", 3, 10)

	bad := tile.Encode(make([]tile.Point, 10))
	binary.LittleEndian.PutUint32(bad[0:4], 0xBADC0DE)
	src.Put("ds", tiles[1], bad)

	s := New(src, nil, testOptions())
	defer s.Close()

	store, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	p := s.Progress()
	assert.Equal(t, 2, p.TilesLoaded)
	assert.Equal(t, 1, p.TilesFailed)
	assert.Equal(t, 10, p.Renderable)

	failed := s.Failed()
	require.Contains(t, failed, "b")
	assert.ErrorIs(t, failed["b"], tile.ErrMalformed)

	// The malformed range is untouched; the sibling after it landed.
	assert.Equal(t, float32(0), store.Position(15).X())
	assert.Equal(t, float32(25), store.Position(25).X())

	// Malformed tiles are fetched once.
	assert.Equal(t, int64(3), src.Fetches())
}

func TestStreamer_OversizedTileRejected(t *testing.T) {
	src := tilesource.NewMemorySource()
	tiles := makeDataset(src, "ds", 2, 10)
	src.Put("ds", tiles[0], tile.Encode(make([]tile.Point, 11)))

	s := New(src, nil, testOptions())
	defer s.Close()

	_, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	assert.ErrorIs(t, s.Failed()["a"], tile.ErrMalformed)
	assert.Equal(t, 0, s.Progress().Renderable)
}

func TestStreamer_ShortTileRejected(t *testing.T) {
	src := tilesource.NewMemorySource()
	tiles := makeDataset(src, "ds", 2, 10)
	src.Put("ds", tiles[0], tile.Encode(make([]tile.Point, 4)))

	s := New(src, nil, testOptions())
	defer s.Close()

	store, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	p := s.Progress()
	assert.Equal(t, 1, p.TilesFailed)
	assert.Equal(t, 0, p.Renderable, "prefix never covers unwritten indices")
	assert.ErrorIs(t, s.Failed()["a"], tile.ErrMalformed)
	assert.Equal(t, float32(10), store.Position(10).X())
}

func TestStreamer_ProgressCarriesStore(t *testing.T) {
	src := tilesource.NewMemorySource()
	tiles := makeDataset(src, "ds", 2, 10)

	bus := event.NewBus()
	var mu sync.Mutex
	var stores []*pointbuf.Store
	bus.LoadProgress.Subscribe(func(p event.LoadProgress) {
		mu.Lock()
		stores = append(stores, p.Store)
		mu.Unlock()
	})

	s := New(src, bus, testOptions())
	defer s.Close()

	store, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, stores)
	for _, got := range stores {
		assert.Same(t, store, got)
	}
}

// flakySource fails the first failures fetches of every tile.
type flakySource struct {
	inner    tilesource.Source
	mu       sync.Mutex
	failures int
	calls    map[string]int
}

func (f *flakySource) Fetch(ctx context.Context, ds string, t tile.Tile) ([]byte, error) {
	f.mu.Lock()
	f.calls[t.ID]++
	n := f.calls[t.ID]
	f.mu.Unlock()
	if n <= f.failures {
		return nil, &tilesource.FetchError{TileID: t.ID, StatusCode: 503, Err: errors.New("unavailable")}
	}
	return f.inner.Fetch(ctx, ds, t)
}

func (f *flakySource) setFailures(n int) {
	f.mu.Lock()
	f.failures = n
	f.calls = make(map[string]int)
	f.mu.Unlock()
}

func TestStreamer_RetriesTransientFailures(t *testing.T) {
	mem := tilesource.NewMemorySource()
	tiles := makeDataset(mem, "ds", 2, 10)
	src := &flakySource{inner: mem, failures: 2, calls: make(map[string]int)}

	s := New(src, nil, testOptions())
	defer s.Close()

	_, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	assert.Equal(t, 20, s.Progress().Renderable)
	assert.Equal(t, 3, src.calls["a"])
}

func TestStreamer_NotFoundIsNotRetried(t *testing.T) {
	mem := tilesource.NewMemorySource()
	tiles := makeDataset(mem, "ds", 1, 10)
	tiles = append(tiles, tile.Tile{ID: "missing", X: 9, BaseIndex: 10, Points: 5})

	s := New(mem, nil, testOptions())
	defer s.Close()

	_, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	assert.ErrorIs(t, s.Failed()["missing"], tilesource.ErrNotFound)
	assert.Equal(t, int64(2), mem.Fetches())
	assert.Equal(t, 10, s.Progress().Renderable)
}

func TestStreamer_RetryFailed(t *testing.T) {
	mem := tilesource.NewMemorySource()
	tiles := makeDataset(mem, "ds", 3, 10)
	src := &flakySource{inner: mem, failures: 10, calls: make(map[string]int)}

	s := New(src, nil, testOptions())
	defer s.Close()

	store, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)
	require.Equal(t, 3, s.Progress().TilesFailed)
	require.Equal(t, 0, s.Progress().Renderable)

	var fe *tilesource.FetchError
	require.ErrorAs(t, s.Failed()["a"], &fe)
	assert.Equal(t, 503, fe.StatusCode)

	src.setFailures(0)
	n, err := s.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	waitLoad(t, s)

	assert.Same(t, store, s.Store())
	assert.Equal(t, 30, s.Progress().Renderable)
	assert.Empty(t, s.Failed())

	n, err = s.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStreamer_RetryFailedAfterStoreReplaced(t *testing.T) {
	mem := tilesource.NewMemorySource()
	tiles := makeDataset(mem, "ds", 1, 10)
	tiles = append(tiles, tile.Tile{ID: "missing", X: 9, BaseIndex: 10, Points: 5})

	bus := event.NewBus()
	s := New(mem, bus, testOptions())
	defer s.Close()

	_, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)

	bus.StoreReplaced.Publish(event.StoreReplaced{Store: pointbuf.New(3)})
	_, err = s.RetryFailed(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
}

// blockingSource blocks every fetch until ctx is done.
type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSource) Fetch(ctx context.Context, _ string, t tile.Tile) ([]byte, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, &tilesource.FetchError{TileID: t.ID, Err: ctx.Err()}
}

func TestStreamer_NewSignatureCancelsRunningLoad(t *testing.T) {
	mem := tilesource.NewMemorySource()
	tilesA := makeDataset(mem, "a", 2, 10)
	tilesB := makeDataset(mem, "b", 2, 10)

	blocking := &blockingSource{started: make(chan struct{})}
	router := sourceFunc(func(ctx context.Context, ds string, t tile.Tile) ([]byte, error) {
		if ds == "a" {
			return blocking.Fetch(ctx, ds, t)
		}
		return mem.Fetch(ctx, ds, t)
	})

	s := New(router, nil, testOptions())
	defer s.Close()

	first, err := s.Load(context.Background(), "a", tilesA)
	require.NoError(t, err)
	<-blocking.started

	second, err := s.Load(context.Background(), "b", tilesB)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	waitLoad(t, s)

	assert.Same(t, second, s.Store())
	assert.Equal(t, 20, s.Progress().Renderable)
	assert.Equal(t, float32(0), first.Position(5).X())
}

func TestStreamer_CompressedTiles(t *testing.T) {
	mem := tilesource.NewMemorySource()
	tiles := makeDataset(mem, "ds", 2, 10)
	for i, c := range []tile.Compression{tile.CompressionZSTD, tile.CompressionLZ4} {
		raw, err := mem.Fetch(context.Background(), "ds", tiles[i])
		require.NoError(t, err)
		wrapped, err := tile.Wrap(raw, c)
		require.NoError(t, err)
		mem.Put("ds", tiles[i], wrapped)
	}

	s := New(mem, nil, testOptions())
	defer s.Close()

	store, err := s.Load(context.Background(), "ds", tiles)
	require.NoError(t, err)
	waitLoad(t, s)
	assert.Equal(t, 20, s.Progress().Renderable)
	assert.Equal(t, float32(13), store.Position(13).X())
}

func TestStreamer_Closed(t *testing.T) {
	s := New(tilesource.NewMemorySource(), nil, testOptions())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Load(context.Background(), "ds", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

type sourceFunc func(ctx context.Context, ds string, t tile.Tile) ([]byte, error)

func (f sourceFunc) Fetch(ctx context.Context, ds string, t tile.Tile) ([]byte, error) {
	return f(ctx, ds, t)
}
