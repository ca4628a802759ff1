// Package models - Output decoders and class-name tables for the supported model generations.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/rfdetr"
	"github.com/nvr-ai/go-detect/models/yolov5"
	"github.com/nvr-ai/go-detect/models/yolov8"
)

// NewDecoder creates the decoder for an output layout.
//
// Arguments:
//   - name: The output layout.
//   - config: The decoder configuration.
//
// Returns:
//   - model.Decoder: The decoder.
//   - error: An error if the layout is unsupported or the configuration is invalid.
//
// Example:
//
// ```go
//
//	decoder, err := NewDecoder(model.ModelNameYOLOv8, model.Config{InputSize: 640})
//	if err != nil {
//	    return err
//	}
//	results, err := decoder.PostProcess(output, shape, image.Pt(1920, 1080))
//
// ```
func NewDecoder(name model.Name, config model.Config) (model.Decoder, error) {
	switch name {
	case model.ModelNameYOLOv8:
		m, err := yolov8.NewModel(config)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameYOLOv5:
		m, err := yolov5.NewModel(config)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameRFDETR:
		m, err := rfdetr.NewModel(config)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", name)
	}
}

// DetectLayout guesses the output layout from an output shape.
//
// [1, 4+nc, anchors] with more anchors than rows is the anchor-free head; [1, N, 6] is the corner
// layout; any other [1, N, 5+nc] is the row layout.
//
// Arguments:
//   - shape: The output shape.
//
// Returns:
//   - model.Name: The layout.
//   - error: An error if the shape fits no layout.
func DetectLayout(shape []int64) (model.Name, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return "", fmt.Errorf("unsupported output shape %v", shape)
	}
	rows, cols := shape[1], shape[2]
	switch {
	case rows >= 5 && cols > rows:
		return model.ModelNameYOLOv8, nil
	case cols == rfdetr.RowSize:
		return model.ModelNameRFDETR, nil
	case cols >= 5:
		return model.ModelNameYOLOv5, nil
	default:
		return "", fmt.Errorf("unsupported output shape %v", shape)
	}
}
