package main

import (
	"encoding/json"
	"os"

	"github.com/nvr-ai/go-detect/dispatch"
)

// InfoCmd prints a backend description.
type InfoCmd struct {
	Backend string `short:"b" default:"local" help:"Backend: local, remote_vision, remote_generative or an alias"`
}

// Run prints the description as JSON.
func (i *InfoCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	info, err := dispatch.New(dispatch.NewRegistry(cfg.Backends(), nil)).Describe(i.Backend)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
