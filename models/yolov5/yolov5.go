// Package yolov5 - Decoding of anchor-based YOLO rows (previous generation).
package yolov5

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// YOLOv5 decodes [1, N, 5+nc] rows of cx, cy, w, h, objectness, class scores.
type YOLOv5 struct {
	config model.Config
}

// NewModel creates a new decoder.
//
// Arguments:
//   - config: The decoder configuration.
//
// Returns:
//   - *YOLOv5: The decoder.
//   - error: An error if the input size is not positive.
func NewModel(config model.Config) (*YOLOv5, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("NewModel requires a positive input size")
	}
	return &YOLOv5{config: config}, nil
}

// Name returns the output layout.
func (m *YOLOv5) Name() model.Name {
	return model.ModelNameYOLOv5
}

// PostProcess postprocesses the rows of the detection head.
//
// The score of a row is objectness times the best class score.
//
// Arguments:
//   - output: The flat output tensor.
//   - shape: The output shape, [1, N, 5+nc] or [N, 5+nc].
//   - src: The source image dimensions the boxes are scaled back to.
//
// Returns:
//   - []postprocess.Result: The detections, highest score first.
//   - error: An error if the shape does not match the layout.
func (m *YOLOv5) PostProcess(output []float32, shape []int64, src image.Point) ([]postprocess.Result, error) {
	numRows, numCols, err := rowLayout(shape)
	if err != nil {
		return nil, err
	}
	if len(output) < numRows*numCols {
		return nil, fmt.Errorf("output holds %d floats, shape needs %d", len(output), numRows*numCols)
	}

	threshold := m.config.Confidence()
	sx, sy := model.ScaleFactors(m.config.InputSize, src)
	results := make([]postprocess.Result, 0, 64)

	for i := 0; i < numRows; i++ {
		offset := i * numCols
		objConf := output[offset+4]
		if objConf < threshold {
			continue
		}

		classID := 0
		maxScore := float32(0)
		for j := 5; j < numCols; j++ {
			score := output[offset+j]
			if score > maxScore {
				maxScore = score
				classID = j - 5
			}
		}
		if numCols == 5 {
			maxScore = 1
		}

		finalScore := objConf * maxScore
		if finalScore < threshold {
			continue
		}

		cx, cy := output[offset+0], output[offset+1]
		w, h := output[offset+2], output[offset+3]

		results = append(results, postprocess.Result{
			Box:   images.Rect{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}.Scale(sx, sy),
			Score: finalScore,
			Class: classID,
		})
	}

	return postprocess.ApplyGreedyNMS(results, m.config.NMS), nil
}

func rowLayout(shape []int64) (int, int, error) {
	switch {
	case len(shape) == 3 && shape[0] == 1:
		shape = shape[1:]
	case len(shape) == 2:
	default:
		return 0, 0, fmt.Errorf("expected output shape [1, N, 5+nc], got %v", shape)
	}
	if shape[1] < 5 {
		return 0, 0, fmt.Errorf("rows have %d columns, need at least 5", shape[1])
	}
	return int(shape[0]), int(shape[1]), nil
}
