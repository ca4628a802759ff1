package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-detect/models"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

// manifest is a YAML/JSON checkpoint description pointing at the real weights.
type manifest struct {
	// Weights points at a single-file export loadable by the modern loader.
	Weights string `yaml:"weights" json:"weights"`
	// Model describes a nested network.
	Model *struct {
		Path string `yaml:"path" json:"path"`
	} `yaml:"model" json:"model"`
	// Names optionally carries the class table.
	Names yaml.Node `yaml:"names" json:"names"`
}

// nestedPath returns the nested network path, empty when there is none.
func (m *manifest) nestedPath() string {
	if m.Model == nil {
		return ""
	}
	return m.Model.Path
}

// parseManifest decodes data as a manifest. Binary weights and text without a weights or model
// entry are not manifests.
func parseManifest(data []byte) (*manifest, bool) {
	if len(data) == 0 {
		return nil, false
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, false
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	if m.Weights == "" && m.nestedPath() == "" {
		return nil, false
	}
	return &m, true
}

// names decodes the optional class table of the manifest.
func (m *manifest) names() models.ClassNames {
	if m.Names.IsZero() {
		return nil
	}
	var list []string
	if err := m.Names.Decode(&list); err == nil && len(list) > 0 {
		return models.FromList(list)
	}
	var mapping map[int]string
	if err := m.Names.Decode(&mapping); err == nil && len(mapping) > 0 {
		return models.ClassNames(mapping)
	}
	return nil
}

// resolvePath resolves p relative to the directory of the manifest.
func resolvePath(manifestPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(manifestPath), p)
}

// loadRaw reads the weights file directly and branches on what it holds.
//
// A manifest with weights is retried with the modern loader, a manifest with a nested model loads
// that network for inference only, and anything else is treated as a serialized network.
func loadRaw(ctx context.Context, req LoadRequest) (Model, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights")
	}

	if m, ok := parseManifest(data); ok {
		if req.Names == nil {
			req.Names = m.names()
		}

		if m.Weights != "" {
			sub := req
			sub.Path = resolvePath(req.Path, m.Weights)
			model, err := loadModern(ctx, sub)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest weights %s", sub.Path)
			}
			return model, nil
		}

		path := resolvePath(req.Path, m.nestedPath())
		net, err := newDNNNet(gocv.ReadNetFromONNX(path), req.Config.InputSize, req.Device)
		if err != nil {
			return nil, errors.Wrapf(err, "nested model %s", path)
		}
		return &nestedModel{manifest: req.Path, inner: &rawModel{net: net, decoder: newLayoutDecoder(req.Config), names: req.Names}}, nil
	}

	parsed, err := gocv.ReadNetFromONNXBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse weights as a network")
	}
	net, err := newDNNNet(parsed, req.Config.InputSize, req.Device)
	if err != nil {
		return nil, err
	}
	return &rawModel{net: net, decoder: newLayoutDecoder(req.Config), names: req.Names}, nil
}
