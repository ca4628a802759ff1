// Package config - Service configuration: defaults, YAML file, .env file and environment overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/backends/generative"
	"github.com/nvr-ai/go-detect/backends/local"
	"github.com/nvr-ai/go-detect/backends/vision"
	"github.com/nvr-ai/go-detect/dispatch"
	"github.com/nvr-ai/go-detect/store"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DETECT_"

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	// Listen is the listen address.
	Listen string `json:"listen" yaml:"listen"`
	// RequestTimeout bounds one analysis request. Zero disables it.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	// MaxUploadBytes bounds the request body.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig      `json:"server" yaml:"server"`
	Local      local.Config      `json:"local" yaml:"local"`
	Vision     vision.Config     `json:"vision" yaml:"vision"`
	Generative generative.Config `json:"generative" yaml:"generative"`
	Store      store.Config      `json:"store" yaml:"store"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:         ":8080",
			RequestTimeout: 5 * time.Minute,
			MaxUploadBytes: 32 << 20,
		},
		Local:      local.DefaultConfig(),
		Vision:     vision.DefaultConfig(),
		Generative: generative.DefaultConfig(),
		Store:      store.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file, optional .env files and
// DETECT_* environment variables, in that order of precedence (last wins).
//
// Arguments:
//   - path: The YAML file, empty to skip it.
//   - envFiles: .env files to load. Missing files are skipped and set variables are not overridden.
//
// Returns:
//   - Config: The configuration.
//   - error: An error if a file cannot be parsed or the result is invalid.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		xlog.Debug("Loading environment file", "file", f)
		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load env file %s", f)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LISTEN":              &c.Server.Listen,
		"WEIGHTS_PATH":        &c.Local.WeightsPath,
		"NAMES_PATH":          &c.Local.NamesPath,
		"SHARED_LIBRARY_PATH": &c.Local.SharedLibraryPath,
		"VISION_ENDPOINT":     &c.Vision.Endpoint,
		"VISION_MODEL_ID":     &c.Vision.ModelID,
		"VISION_API_KEY":      &c.Vision.APIKey,
		"GENERATIVE_API_URL":  &c.Generative.APIURL,
		"GENERATIVE_API_KEY":  &c.Generative.APIKey,
		"GENERATIVE_MODEL":    &c.Generative.Model,
		"STORE_DSN":           &c.Store.DSN,
		"STORE_IMAGE_DIR":     &c.Store.ImageDir,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"INPUT_SIZE":            &c.Local.InputSize,
		"CUDA_DEVICE_ID":        &c.Local.CUDADeviceID,
		"VISION_CONFIDENCE":     &c.Vision.Confidence,
		"VISION_OVERLAP":        &c.Vision.Overlap,
		"GENERATIVE_MAX_TOKENS": &c.Generative.MaxTokens,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", EnvPrefix, key)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %sMAX_UPLOAD_BYTES", EnvPrefix)
		}
		c.Server.MaxUploadBytes = n
	}

	if v, ok := os.LookupEnv(EnvPrefix + "GUESS_ON_UNRECOGNIZED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sGUESS_ON_UNRECOGNIZED", EnvPrefix)
		}
		c.Local.GuessOnUnrecognized = b
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT":    &c.Server.RequestTimeout,
		"VISION_TIMEOUT":     &c.Vision.Timeout,
		"GENERATIVE_TIMEOUT": &c.Generative.Timeout,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", EnvPrefix, key)
			}
			*dst = d
		}
	}

	floats := map[string]*float32{
		"CONFIDENCE_THRESHOLD": &c.Local.ConfidenceThreshold,
		"NMS_THRESHOLD":        &c.Local.NMSThreshold,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", EnvPrefix, key)
			}
			*dst = float32(f)
		}
	}
	return nil
}

// Validate rejects structurally invalid values. Missing credentials are not structural errors;
// the affected backend reports them on first use.
func (c Config) Validate() error {
	switch {
	case c.Server.Listen == "":
		return errors.New("server.listen must not be empty")
	case c.Server.RequestTimeout < 0:
		return errors.New("server.request_timeout must not be negative")
	case c.Server.MaxUploadBytes <= 0:
		return errors.New("server.max_upload_bytes must be positive")
	case c.Local.InputSize <= 0 || c.Local.InputSize%32 != 0:
		return errors.Errorf("local.input_size must be a positive multiple of 32, got %d", c.Local.InputSize)
	case c.Local.ConfidenceThreshold < 0 || c.Local.ConfidenceThreshold > 1:
		return errors.Errorf("local.confidence_threshold must be within [0,1], got %v", c.Local.ConfidenceThreshold)
	case c.Local.NMSThreshold < 0 || c.Local.NMSThreshold > 1:
		return errors.Errorf("local.nms_threshold must be within [0,1], got %v", c.Local.NMSThreshold)
	case c.Local.CUDADeviceID < 0:
		return errors.New("local.cuda_device_id must not be negative")
	case c.Vision.Confidence < 0 || c.Vision.Confidence > 100:
		return errors.Errorf("vision.confidence must be within [0,100], got %d", c.Vision.Confidence)
	case c.Vision.Overlap < 0 || c.Vision.Overlap > 100:
		return errors.Errorf("vision.overlap must be within [0,100], got %d", c.Vision.Overlap)
	case c.Generative.MaxTokens < 0:
		return errors.New("generative.max_tokens must not be negative")
	case c.Store.DSN == "":
		return errors.New("store.dsn must not be empty")
	}
	return nil
}

// Backends returns the per-backend sections for the dispatcher registry.
func (c Config) Backends() dispatch.BackendConfigs {
	return dispatch.BackendConfigs{
		Local:      c.Local,
		Vision:     c.Vision,
		Generative: c.Generative,
	}
}
