package oplog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader carries a per-request correlation id.
const requestIDHeader = "X-Request-ID"

// HTTPBackend talks to the dataset session API.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		b.client = c
	}
}

// NewHTTPBackend creates a backend for the API at baseURL.
func NewHTTPBackend(baseURL string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type appendRequest struct {
	BaseVersion uint64 `json:"baseVersion"`
	Ops         []Op   `json:"ops"`
}

func (b *HTTPBackend) sessionsURL(datasetID string) string {
	return fmt.Sprintf("%s/datasets/%s/sessions/", b.baseURL, url.PathEscape(datasetID))
}

// CreateSession implements Backend.
func (b *HTTPBackend) CreateSession(ctx context.Context, datasetID string) (Session, error) {
	var s Session
	if err := b.do(ctx, http.MethodPost, b.sessionsURL(datasetID), nil, &s); err != nil {
		return Session{}, fmt.Errorf("oplog: create session: %w", err)
	}
	return s, nil
}

// Session implements Backend.
func (b *HTTPBackend) Session(ctx context.Context, datasetID, sessionID string) (Session, error) {
	var s Session
	if err := b.do(ctx, http.MethodGet, b.sessionsURL(datasetID)+url.PathEscape(sessionID), nil, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Sessions lists the sessions of a dataset, newest first.
func (b *HTTPBackend) Sessions(ctx context.Context, datasetID string) ([]Session, error) {
	var out []Session
	if err := b.do(ctx, http.MethodGet, b.sessionsURL(datasetID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Append implements Backend.
func (b *HTTPBackend) Append(ctx context.Context, datasetID, sessionID string, baseVersion uint64, ops []Op) ([]Record, error) {
	body, err := json.Marshal(appendRequest{BaseVersion: baseVersion, Ops: ops})
	if err != nil {
		return nil, err
	}
	var recs []Record
	u := b.sessionsURL(datasetID) + url.PathEscape(sessionID) + "/ops"
	if err := b.do(ctx, http.MethodPatch, u, body, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, u string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := apiDetail(msg)
		switch resp.StatusCode {
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrVersionConflict, detail)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrSessionNotFound, detail)
		}
		return fmt.Errorf("oplog: %s %s: status %d: %s", method, u, resp.StatusCode, detail)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("oplog: decode response: %w", err)
	}
	return nil
}

// apiDetail extracts the "detail" field of an API error body.
func apiDetail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "no detail"
}
