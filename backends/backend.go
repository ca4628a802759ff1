// Package backends - Service contract shared by every detection backend.
package backends

import (
	"context"
	"image"

	"github.com/nvr-ai/go-detect/detection"
)

// Backend is one way of turning an image into canonical detections.
//
// A backend instance is created per request and closed when the request completes.
type Backend interface {
	// Kind returns the backend kind.
	Kind() detection.BackendKind
	// Load prepares the backend. It is idempotent and trivially succeeds for remote backends.
	Load(ctx context.Context) error
	// Process runs detection on img. It loads lazily when Load was not called.
	Process(ctx context.Context, img image.Image) (*detection.Result, error)
	// Describe returns static metadata without running inference.
	Describe() Info
	// Close releases native resources.
	Close() error
}

// Info is the static description of a backend.
type Info struct {
	// Kind is the backend kind.
	Kind detection.BackendKind `json:"kind"`
	// Model is the model path or remote model identifier.
	Model string `json:"model"`
	// Endpoint is the remote endpoint, empty for the local backend.
	Endpoint string `json:"endpoint,omitempty"`
	// Device is the selected execution device, local backend only.
	Device string `json:"device,omitempty"`
	// Configured reports whether every required setting is present.
	Configured bool `json:"configured"`
	// Details holds backend-specific extras.
	Details map[string]any `json:"details,omitempty"`
}
