// Package vision - Hosted vision detection API backend (Roboflow-compatible).
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/backends"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
)

// DefaultEndpoint is the hosted detection endpoint.
const DefaultEndpoint = "https://detect.roboflow.com"

// jpegQuality matches the default quality of common JPEG encoders.
const jpegQuality = 95

// Config configures the vision backend.
type Config struct {
	// Endpoint is the API base URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// ModelID is the hosted model identifier, "<project>/<version>".
	ModelID string `json:"model_id" yaml:"model_id"`
	// APIKey is the API credential.
	APIKey string `json:"api_key" yaml:"api_key"`
	// Confidence is the server-side confidence threshold in percent.
	Confidence int `json:"confidence" yaml:"confidence"`
	// Overlap is the server-side NMS overlap threshold in percent.
	Overlap int `json:"overlap" yaml:"overlap"`
	// Timeout bounds one HTTP round trip. Zero disables it.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default vision backend configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:   DefaultEndpoint,
		Confidence: 40,
		Overlap:    30,
		Timeout:    30 * time.Second,
	}
}

// prediction is one box in the API response, center convention.
type prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type response struct {
	Predictions []prediction `json:"predictions"`
}

// Backend calls the hosted vision API.
type Backend struct {
	config Config
	client *http.Client
}

// New creates a vision backend. Missing credentials are only fatal on first use.
//
// Arguments:
//   - config: The backend configuration.
//   - client: The HTTP client, nil for a client bounded by config.Timeout.
//
// Returns:
//   - *Backend: The backend.
func New(config Config, client *http.Client) *Backend {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if config.APIKey == "" || config.ModelID == "" {
		xlog.Warn("Vision backend is missing credentials", "model_id", config.ModelID, "api_key_set", config.APIKey != "")
	}
	return &Backend{config: config, client: client}
}

// Kind returns the remote vision backend kind.
func (b *Backend) Kind() detection.BackendKind {
	return detection.BackendRemoteVision
}

// Load is a no-op.
func (b *Backend) Load(ctx context.Context) error {
	return nil
}

// Process posts img to the API and converts the predictions to corner boxes.
//
// Arguments:
//   - ctx: The context.
//   - img: The decoded image.
//
// Returns:
//   - *detection.Result: The normalized result.
//   - error: A *detection.ConfigurationError when credentials are missing, otherwise a
//     *detection.ProcessingFailure on any transport, status or decoding error.
func (b *Backend) Process(ctx context.Context, img image.Image) (*detection.Result, error) {
	if img == nil {
		return nil, &detection.ValidationFailure{Field: "image", Reason: "no image"}
	}
	if b.config.APIKey == "" {
		return nil, &detection.ConfigurationError{Backend: detection.BackendRemoteVision, Setting: "api_key"}
	}
	if b.config.ModelID == "" {
		return nil, &detection.ConfigurationError{Backend: detection.BackendRemoteVision, Setting: "model_id"}
	}

	body, err := images.EncodeJPEG(img, jpegQuality)
	if err != nil {
		return nil, detection.NewProcessingFailure(detection.BackendRemoteVision, err)
	}

	preds, err := b.post(ctx, body)
	if err != nil {
		return nil, detection.NewProcessingFailure(detection.BackendRemoteVision, err)
	}

	dets := make([]detection.Detection, 0, len(preds))
	for _, p := range preds {
		class := p.Class
		if class == "" {
			class = "unknown"
		}
		dets = append(dets, detection.NewDetection(class, 0, p.Confidence,
			detection.BoxFromCenter(p.X, p.Y, p.Width, p.Height)))
	}
	if len(dets) == 0 {
		xlog.Warn("Vision API returned no detections", "model_id", b.config.ModelID)
	}

	return detection.NewResult(detection.BackendRemoteVision, dets, map[string]any{
		"api_source": "roboflow",
		"model_id":   b.config.ModelID,
	}), nil
}

// requestURL builds the inference URL with the key and thresholds in the query.
func (b *Backend) requestURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(b.config.Endpoint, "/") + "/" + strings.TrimLeft(b.config.ModelID, "/"))
	if err != nil {
		return "", errors.Wrap(err, "invalid endpoint")
	}
	q := u.Query()
	q.Set("api_key", b.config.APIKey)
	q.Set("confidence", strconv.Itoa(b.config.Confidence))
	q.Set("overlap", strconv.Itoa(b.config.Overlap))
	q.Set("format", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *Backend) post(ctx context.Context, body []byte) ([]prediction, error) {
	target, err := b.requestURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(payload, 256))
	}

	var decoded response
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, errors.Wrap(err, "malformed response")
	}
	return decoded.Predictions, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// Describe returns static metadata.
func (b *Backend) Describe() backends.Info {
	return backends.Info{
		Kind:       detection.BackendRemoteVision,
		Model:      b.config.ModelID,
		Endpoint:   b.config.Endpoint,
		Configured: b.config.APIKey != "" && b.config.ModelID != "",
		Details: map[string]any{
			"confidence": b.config.Confidence,
			"overlap":    b.config.Overlap,
		},
	}
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
