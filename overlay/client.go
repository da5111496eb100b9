package overlay

import (
	"bytes"
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
)

// ErrPreviewNotFound is returned for unknown preview ids.
var ErrPreviewNotFound = errors.New("overlay: preview not found")

// PreviewRequest asks the ML service to segment a dataset.
type PreviewRequest struct {
	DatasetPath   string   `json:"dataset_path"`
	Eps           float64  `json:"eps,omitempty"`
	MinPoints     int      `json:"min_points,omitempty"`
	VoxelSize     *float64 `json:"voxel_size,omitempty"`
	UseNN         *bool    `json:"use_nn,omitempty"`
	Checkpoint    string   `json:"checkpoint,omitempty"`
	ModelType     string   `json:"model_type,omitempty"`
	TargetClasses []string `json:"target_classes,omitempty"`
}

// Preview is the summary returned when a preview is created.
type Preview struct {
	ID    string         `json:"preview_id"`
	Stats map[string]int `json:"stats"`
}

// Detail lists the clusters of a preview. Clusters[i] holds the dataset
// indices labelled Labels[i].
type Detail struct {
	NumPoints       int        `json:"num_points"`
	Labels          []string   `json:"labels"`
	Clusters        [][]uint32 `json:"clusters"`
	SelectedClasses []string   `json:"selected_classes"`
}

// Client talks to the ML preview API.
type Client struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.client = c
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Previews run the segmentation synchronously.
		client: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePreview runs a segmentation and returns its id and class counts.
func (c *Client) CreatePreview(ctx context.Context, req PreviewRequest) (Preview, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Preview{}, err
	}
	var p Preview
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/ml/preview", body, &p); err != nil {
		return Preview{}, fmt.Errorf("overlay: create preview: %w", err)
	}
	return p, nil
}

// PreviewDetail returns the clusters of a preview.
func (c *Client) PreviewDetail(ctx context.Context, id string) (Detail, error) {
	var d Detail
	u := fmt.Sprintf("%s/ml/preview/%s/detail", c.baseURL, url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, u, nil, &d); err != nil {
		return Detail{}, fmt.Errorf("overlay: preview %s: %w", id, err)
	}
	return d, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPreviewNotFound
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
