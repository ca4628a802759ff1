package main

import (
	"github.com/nvr-ai/go-detect/config"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config    string   `env:"DETECT_CONFIG" type:"path" help:"YAML configuration file"`
	EnvFiles  []string `env:"DETECT_ENV_FILES" default:".env" help:"Environment files loaded before DETECT_* overrides"`
	LogLevel  string   `env:"DETECT_LOG_LEVEL" default:"info" enum:"error,warn,info,debug" help:"Log level [${enum}]"`
	LogFormat string   `env:"DETECT_LOG_FORMAT" default:"text" enum:"default,text,json" help:"Log format [${enum}]"`
}

// load reads the configuration named by the global flags.
func (g *Globals) load() (config.Config, error) {
	return config.Load(g.Config, g.EnvFiles...)
}

var cli struct {
	Globals `embed:""`

	Serve  ServeCmd  `cmd:"" default:"1" help:"Run the HTTP API"`
	Detect DetectCmd `cmd:"" help:"Run detection on an image, a directory of images or a video file"`
	Info   InfoCmd   `cmd:"" help:"Describe a backend without running inference"`
}
