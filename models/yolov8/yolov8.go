// Package yolov8 - Decoding of anchor-free YOLO outputs (v8 and later).
package yolov8

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// YOLOv8 decodes the transposed [1, 4+nc, anchors] detection head.
type YOLOv8 struct {
	config model.Config
}

// NewModel creates a new decoder.
//
// Arguments:
//   - config: The decoder configuration.
//
// Returns:
//   - *YOLOv8: The decoder.
//   - error: An error if the input size is not positive.
func NewModel(config model.Config) (*YOLOv8, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("NewModel requires a positive input size")
	}
	return &YOLOv8{config: config}, nil
}

// Name returns the output layout.
func (m *YOLOv8) Name() model.Name {
	return model.ModelNameYOLOv8
}

// PostProcess postprocesses the output of the detection head.
//
// For every anchor the best class score is taken as the confidence; rows 0-3 hold the box
// center and size in network input pixels.
//
// Arguments:
//   - output: The flat output tensor.
//   - shape: The output shape, [1, 4+nc, anchors].
//   - src: The source image dimensions the boxes are scaled back to.
//
// Returns:
//   - []postprocess.Result: The detections, highest score first.
//   - error: An error if the shape does not match the layout.
func (m *YOLOv8) PostProcess(output []float32, shape []int64, src image.Point) ([]postprocess.Result, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected output shape [1, 4+nc, anchors], got %v", shape)
	}
	rows, anchors := int(shape[1]), int(shape[2])
	if rows < 5 {
		return nil, fmt.Errorf("output has %d rows, need at least 5", rows)
	}
	if len(output) < rows*anchors {
		return nil, fmt.Errorf("output holds %d floats, shape needs %d", len(output), rows*anchors)
	}

	numClasses := rows - 4
	threshold := m.config.Confidence()
	sx, sy := model.ScaleFactors(m.config.InputSize, src)
	results := make([]postprocess.Result, 0, 64)

	for idx := 0; idx < anchors; idx++ {
		classID := 0
		probability := float32(-1e9)
		for col := 0; col < numClasses; col++ {
			p := output[anchors*(col+4)+idx]
			if p > probability {
				probability = p
				classID = col
			}
		}
		if probability < threshold {
			continue
		}

		xc, yc := output[idx], output[anchors+idx]
		w, h := output[2*anchors+idx], output[3*anchors+idx]
		box := images.Rect{X1: xc - w/2, Y1: yc - h/2, X2: xc + w/2, Y2: yc + h/2}.Scale(sx, sy)

		results = append(results, postprocess.Result{
			Box:   clip(box, src),
			Score: probability,
			Class: classID,
		})
	}

	return postprocess.ApplyGreedyNMS(results, m.config.NMS), nil
}

// Classify returns the best class of a [1, nc] classification output.
//
// Arguments:
//   - output: The class scores.
//
// Returns:
//   - int: The top-1 class index, -1 for an empty output.
//   - float32: The top-1 score.
func Classify(output []float32) (int, float32) {
	top1, best := -1, float32(math32.Inf(-1))
	for i, v := range output {
		if v > best {
			top1, best = i, v
		}
	}
	if top1 < 0 {
		return -1, 0
	}
	return top1, best
}

func clip(r images.Rect, src image.Point) images.Rect {
	w, h := float32(src.X), float32(src.Y)
	return images.Rect{
		X1: math32.Max(0, math32.Min(r.X1, w)),
		Y1: math32.Max(0, math32.Min(r.Y1, h)),
		X2: math32.Max(0, math32.Min(r.X2, w)),
		Y2: math32.Max(0, math32.Min(r.Y2, h)),
	}
}
