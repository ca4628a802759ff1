// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/go-detect/images"

// Result represents a single decoded detection before class names are attached.
type Result struct {
	// The bounding box of the result in source image pixels.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}
