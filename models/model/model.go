// Package model - Shared decoder contract for raw model outputs.
package model

import (
	"image"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Name is the unique identifier of an output layout.
type Name string

const (
	// ModelNameYOLOv8 is the anchor-free layout [1, 4+nc, anchors] (v8 and later).
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameYOLOv5 is the anchor-based row layout [1, N, 5+nc] (previous generation).
	ModelNameYOLOv5 Name = "yolov5"
	// ModelNameRFDETR is the six-column corner layout [1, N, 6].
	ModelNameRFDETR Name = "rfdetr"
)

// Config configures a decoder.
type Config struct {
	// InputSize is the square network input edge the model was run at.
	InputSize int `json:"input_size" yaml:"input_size"`
	// NMS holds the filtering thresholds.
	NMS *postprocess.NMSConfig `json:"nms" yaml:"nms"`
}

// Decoder turns a flat output tensor into detections in source image pixels.
type Decoder interface {
	// Name returns the output layout the decoder understands.
	Name() Name
	// PostProcess decodes the output.
	//
	// Arguments:
	//   - output: The flat output tensor.
	//   - shape: The output tensor shape.
	//   - src: The source image dimensions.
	PostProcess(output []float32, shape []int64, src image.Point) ([]postprocess.Result, error)
}

// ScaleFactors returns the multipliers mapping network input coordinates back to the source image.
func ScaleFactors(inputSize int, src image.Point) (float32, float32) {
	if inputSize <= 0 {
		return 1, 1
	}
	return float32(src.X) / float32(inputSize), float32(src.Y) / float32(inputSize)
}

// Confidence returns the confidence threshold, or zero without an NMS config.
func (c Config) Confidence() float32 {
	if c.NMS == nil {
		return 0
	}
	return c.NMS.ConfidenceThreshold
}
