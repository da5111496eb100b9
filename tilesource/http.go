package tilesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/pcedit/tile"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// HTTPSource fetches tiles from the dataset API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = c
	}
}

// NewHTTPSource creates a source for the API at baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) tileURL(datasetID string, t tile.Tile) string {
	if strings.HasPrefix(t.URI, "http://") || strings.HasPrefix(t.URI, "https://") {
		return t.URI
	}
	return fmt.Sprintf("%s/datasets/%s/tiles/%d/%d/%d", s.baseURL, url.PathEscape(datasetID), t.Z, t.X, t.Y)
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error) {
	body, status, err := s.get(ctx, s.tileURL(datasetID, t))
	if err != nil {
		return nil, &FetchError{TileID: t.ID, StatusCode: status, Err: err}
	}
	return body, nil
}

// Tiles implements Catalog.
func (s *HTTPSource) Tiles(ctx context.Context, datasetID string) ([]tile.Tile, error) {
	body, _, err := s.get(ctx, fmt.Sprintf("%s/datasets/%s/tiles/", s.baseURL, url.PathEscape(datasetID)))
	if err != nil {
		return nil, fmt.Errorf("tilesource: list tiles of %s: %w", datasetID, err)
	}

	var tiles []tile.Tile
	if err := json.Unmarshal(body, &tiles); err != nil {
		return nil, fmt.Errorf("tilesource: decode tile list: %w", err)
	}
	for i := range tiles {
		if tiles[i].ID == "" {
			tiles[i].ID = tiles[i].Key()
		}
	}
	return tile.SortByBase(tiles), nil
}

func (s *HTTPSource) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, ErrNotFound
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, errors.New(strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
