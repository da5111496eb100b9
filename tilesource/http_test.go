package tilesource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/pcedit/tile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTileServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /datasets/ds/tiles/{$}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		_ = json.NewEncoder(w).Encode([]tile.Tile{
			{ID: "t1", Z: 0, X: 1, Y: 0, Points: 2, BaseIndex: 3},
			{ID: "t0", Z: 0, X: 0, Y: 0, Points: 3, BaseIndex: 0},
		})
	})
	mux.HandleFunc("GET /datasets/ds/tiles/0/0/0", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(encodeTile(3))
	})
	mux.HandleFunc("GET /datasets/ds/tiles/0/1/0", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSource_Tiles(t *testing.T) {
	srv := newTileServer(t)
	src := NewHTTPSource(srv.URL+"/", WithHTTPClient(srv.Client()))

	tiles, err := src.Tiles(context.Background(), "ds")
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, "t0", tiles[0].ID)
	assert.Equal(t, 3, tiles[1].BaseIndex)
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := newTileServer(t)
	src := NewHTTPSource(srv.URL, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	data, err := src.Fetch(ctx, "ds", tile.Tile{ID: "t0"})
	require.NoError(t, err)
	assert.Equal(t, encodeTile(3), data)

	_, err = src.Fetch(ctx, "ds", tile.Tile{ID: "t1", X: 1})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.True(t, fe.Transient())

	_, err = src.Fetch(ctx, "ds", tile.Tile{ID: "t9", X: 9})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPSource_AbsoluteURI(t *testing.T) {
	srv := newTileServer(t)
	src := NewHTTPSource("http://unused.invalid", WithHTTPClient(srv.Client()))

	data, err := src.Fetch(context.Background(), "ds", tile.Tile{ID: "t0", URI: srv.URL + "/datasets/ds/tiles/0/0/0"})
	require.NoError(t, err)
	assert.Equal(t, encodeTile(3), data)
}
