package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/miru/internal/imaging"
	"github.com/hyperjump/miru/internal/models"
)

// encodeQuality is the JPEG quality used when shipping images to the
// inference service. The CLIP preprocessor resizes anyway, so modest
// recompression does not affect embedding quality measurably.
const encodeQuality = 90

// ClipEmbedder talks to a CLIP inference sidecar over HTTP. The sidecar owns
// the model and hardware; this client only moves bytes and enforces the
// dimensionality contract.
type ClipEmbedder struct {
	baseURL    string
	dimensions int
	client     *http.Client
}

// NewClipEmbedder creates a client for the inference service at baseURL.
// dimensions must match the service's model output size.
func NewClipEmbedder(baseURL string, dimensions int, timeout time.Duration) (*ClipEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ClipEmbedder{
		baseURL:    baseURL,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type embedTextRequest struct {
	Text string `json:"text"`
}

type embedTextResponse struct {
	Vector []float32 `json:"vector"`
	Error  string    `json:"error,omitempty"`
}

type embedImagesRequest struct {
	// Images are base64-encoded JPEG bytes in request order.
	Images []string `json:"images"`
}

type embedImagesResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Error   string      `json:"error,omitempty"`
}

// EmbedText returns the embedding for text.
func (e *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var resp embedTextResponse
	if err := e.post(ctx, "/embed/text", embedTextRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", resp.Error)
	}
	if err := e.checkDimensions(resp.Vector); err != nil {
		return nil, err
	}
	return resp.Vector, nil
}

// EmbedImage returns the embedding for the image at path.
func (e *ClipEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	vectors, err := e.EmbedImageBatch(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedImageBatch returns one embedding per path, in input order. Every path
// must decode; the indexing pipeline filters out corrupt files before calling.
func (e *ClipEmbedder) EmbedImageBatch(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	req := embedImagesRequest{Images: make([]string, len(paths))}
	for i, path := range paths {
		img, err := imaging.Decode(path)
		if err != nil {
			return nil, err
		}
		data, err := imaging.EncodeJPEG(img, encodeQuality)
		if err != nil {
			return nil, err
		}
		req.Images[i] = base64.StdEncoding.EncodeToString(data)
	}

	var resp embedImagesResponse
	if err := e.post(ctx, "/embed/images", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", resp.Error)
	}
	if len(resp.Vectors) != len(paths) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d images, got %d vectors", len(paths), len(resp.Vectors))
	}
	for _, vec := range resp.Vectors {
		if err := e.checkDimensions(vec); err != nil {
			return nil, err
		}
	}
	return resp.Vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *ClipEmbedder) Dimensions() int {
	return e.dimensions
}

// Healthy probes the service; any failure means not ready.
func (e *ClipEmbedder) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *ClipEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *ClipEmbedder) checkDimensions(vec []float32) error {
	if len(vec) != e.dimensions {
		return fmt.Errorf("embedding service returned %d dimensions, configured %d: %w",
			len(vec), e.dimensions, models.ErrDimensionMismatch)
	}
	return nil
}

func (e *ClipEmbedder) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

var _ Embedder = (*ClipEmbedder)(nil)
