// Package generative - Hosted text+image generative model backend repurposed for detection.
package generative

import (
	"context"
	"encoding/base64"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/backends"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
)

const (
	// DefaultAPIURL is the Messages API base URL.
	DefaultAPIURL = "https://api.anthropic.com"
	// DefaultModel is the model the instruction prompt was written for.
	DefaultModel = "claude-3-opus-20240229"
	// DefaultMaxTokens bounds the response length.
	DefaultMaxTokens = 1000
	// DefaultPrompt asks for coordinates, class and confidence of every object.
	DefaultPrompt = "Detecta y describe todos los objetos en esta imagen. Proporciona sus coordenadas aproximadas (x1, y1, x2, y2), la clase del objeto y tu nivel de confianza."
)

const jpegQuality = 75

// Config configures the generative backend.
type Config struct {
	// APIURL is the API base URL.
	APIURL string `json:"api_url" yaml:"api_url"`
	// APIKey is the API credential.
	APIKey string `json:"api_key" yaml:"api_key"`
	// Model is the model name.
	Model string `json:"model" yaml:"model"`
	// MaxTokens bounds the response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// Prompt is the instruction sent along with the image.
	Prompt string `json:"prompt" yaml:"prompt"`
	// Timeout bounds one API round trip. Zero disables it.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default generative backend configuration.
func DefaultConfig() Config {
	return Config{
		APIURL:    DefaultAPIURL,
		Model:     DefaultModel,
		MaxTokens: DefaultMaxTokens,
		Prompt:    DefaultPrompt,
		Timeout:   2 * time.Minute,
	}
}

// Backend asks a generative model to describe the objects in an image and parses its answer.
type Backend struct {
	config Config
	client *http.Client
}

// New creates a generative backend. A missing credential is only fatal on first use.
//
// Arguments:
//   - config: The backend configuration. Empty fields take their defaults.
//   - client: The HTTP client, nil for a client bounded by config.Timeout.
//
// Returns:
//   - *Backend: The backend.
func New(config Config, client *http.Client) *Backend {
	defaults := DefaultConfig()
	if config.APIURL == "" {
		config.APIURL = defaults.APIURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Prompt == "" {
		config.Prompt = defaults.Prompt
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if config.APIKey == "" {
		xlog.Warn("Generative backend has no API key configured")
	}
	return &Backend{config: config, client: client}
}

// Kind returns the remote generative backend kind.
func (b *Backend) Kind() detection.BackendKind {
	return detection.BackendRemoteGenerative
}

// Load is a no-op.
func (b *Backend) Load(ctx context.Context) error {
	return nil
}

// Process sends img with the instruction prompt and parses detections out of the answer.
//
// Arguments:
//   - ctx: The context.
//   - img: The decoded image.
//
// Returns:
//   - *detection.Result: The parsed result, empty when the answer holds no coordinates.
//   - error: A *detection.ConfigurationError without a key, a *detection.ProcessingFailure when
//     the API call fails.
func (b *Backend) Process(ctx context.Context, img image.Image) (*detection.Result, error) {
	if img == nil {
		return nil, &detection.ValidationFailure{Field: "image", Reason: "no image"}
	}
	if b.config.APIKey == "" {
		return nil, &detection.ConfigurationError{Backend: detection.BackendRemoteGenerative, Setting: "api_key"}
	}

	encoded, err := images.EncodeJPEG(img, jpegQuality)
	if err != nil {
		return nil, detection.NewProcessingFailure(detection.BackendRemoteGenerative, err)
	}

	text, err := b.ask(ctx, base64.StdEncoding.EncodeToString(encoded))
	if err != nil {
		xlog.Error("Generative API call failed", "model", b.config.Model, "error", err)
		return nil, detection.NewProcessingFailure(detection.BackendRemoteGenerative, err)
	}

	dets := ParseDetections(text)
	if len(dets) == 0 {
		xlog.Warn("No detections found in generative response", "model", b.config.Model)
	}

	return detection.NewResult(detection.BackendRemoteGenerative, dets, map[string]any{
		"raw_response": text,
		"model":        b.config.Model,
	}), nil
}

// ask sends one user message and returns the concatenated text blocks of the answer.
func (b *Backend) ask(ctx context.Context, imageData string) (string, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(b.config.APIKey),
		option.WithBaseURL(b.config.APIURL),
		option.WithHTTPClient(b.client),
		option.WithMaxRetries(0),
	)

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.config.Model),
		MaxTokens: int64(b.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(b.config.Prompt),
				anthropic.NewImageBlockBase64("image/jpeg", imageData),
			),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "messages request failed")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// Describe returns static metadata.
func (b *Backend) Describe() backends.Info {
	return backends.Info{
		Kind:       detection.BackendRemoteGenerative,
		Model:      b.config.Model,
		Endpoint:   b.config.APIURL,
		Configured: b.config.APIKey != "",
		Details: map[string]any{
			"max_tokens":  b.config.MaxTokens,
			"has_api_key": b.config.APIKey != "",
		},
	}
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
