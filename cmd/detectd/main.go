// Command detectd runs object detection through a local model or a hosted API.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/mudler/xlog"
)

func main() {
	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel("info"), "text"))

	ctx := kong.Parse(&cli,
		kong.Name("detectd"),
		kong.Description("Object detection with interchangeable backends: a local ONNX model, a hosted vision API or a generative model."),
		kong.UsageOnError(),
	)

	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel(cli.LogLevel), cli.LogFormat))

	if err := ctx.Run(&cli.Globals); err != nil {
		xlog.Fatal("Error running detectd", "error", err)
	}
}
