package dispatch

import (
	"net/http"
	"strings"

	"github.com/nvr-ai/go-detect/backends"
	"github.com/nvr-ai/go-detect/backends/generative"
	"github.com/nvr-ai/go-detect/backends/local"
	"github.com/nvr-ai/go-detect/backends/vision"
	"github.com/nvr-ai/go-detect/detection"
)

// Constructor builds a fresh backend instance for one request.
type Constructor func() (backends.Backend, error)

// Registry maps backend kinds to their constructors.
type Registry map[detection.BackendKind]Constructor

// aliases are the legacy selector names accepted besides the canonical kinds.
var aliases = map[string]detection.BackendKind{
	"yolo":     detection.BackendLocal,
	"roboflow": detection.BackendRemoteVision,
	"claude":   detection.BackendRemoteGenerative,
}

// ParseSelector resolves a backend selector to its kind.
//
// Arguments:
//   - selector: A canonical kind or an alias, case-insensitive.
//
// Returns:
//   - detection.BackendKind: The resolved kind.
//   - error: A *detection.ValidationFailure when the selector is unknown.
func ParseSelector(selector string) (detection.BackendKind, error) {
	s := strings.ToLower(strings.TrimSpace(selector))
	if kind := detection.BackendKind(s); kind.Valid() {
		return kind, nil
	}
	if kind, ok := aliases[s]; ok {
		return kind, nil
	}
	return "", &detection.ValidationFailure{Field: "backend", Reason: "unknown backend " + selector}
}

// BackendConfigs groups the per-backend configuration sections.
type BackendConfigs struct {
	Local      local.Config
	Vision     vision.Config
	Generative generative.Config
}

// NewRegistry returns the registry of the three built-in backends.
//
// Arguments:
//   - configs: The per-backend configuration.
//   - client: The HTTP client shared by the remote backends, nil for per-backend defaults.
//
// Returns:
//   - Registry: The registry.
func NewRegistry(configs BackendConfigs, client *http.Client) Registry {
	return Registry{
		detection.BackendLocal: func() (backends.Backend, error) {
			return local.New(configs.Local), nil
		},
		detection.BackendRemoteVision: func() (backends.Backend, error) {
			return vision.New(configs.Vision, client), nil
		},
		detection.BackendRemoteGenerative: func() (backends.Backend, error) {
			return generative.New(configs.Generative, client), nil
		},
	}
}
