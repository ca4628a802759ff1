// Package rfdetr - Six-column corner layout used by RF-DETR exports and raw networks.
package rfdetr

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"gorgonia.org/tensor"
)

// RowSize is the number of columns of a decoded row: x1, y1, x2, y2, score, class.
const RowSize = 6

// RFDETR decodes [1, N, 6] rows already in corner convention.
type RFDETR struct {
	config model.Config
}

// NewModel creates a new decoder.
//
// Arguments:
//   - config: The decoder configuration. InputSize zero keeps coordinates unscaled.
//
// Returns:
//   - *RFDETR: The decoder.
//   - error: Always nil.
func NewModel(config model.Config) (*RFDETR, error) {
	return &RFDETR{config: config}, nil
}

// Name returns the output layout.
func (m *RFDETR) Name() model.Name {
	return model.ModelNameRFDETR
}

// PostProcess postprocesses the rows.
//
// Arguments:
//   - output: The flat output tensor.
//   - shape: The output shape, [1, N, 6] or [N, 6].
//   - src: The source image dimensions.
//
// Returns:
//   - []postprocess.Result: The detections, highest score first.
//   - error: An error if the rows are not six columns wide.
func (m *RFDETR) PostProcess(output []float32, shape []int64, src image.Point) ([]postprocess.Result, error) {
	rows, err := Rows(output, shape)
	if err != nil {
		return nil, err
	}
	if rows.Shape()[1] != RowSize {
		return nil, fmt.Errorf("rows have %d columns, want %d", rows.Shape()[1], RowSize)
	}

	data := rows.Data().([]float32)
	numRows := rows.Shape()[0]
	threshold := m.config.Confidence()
	sx, sy := float32(1), float32(1)
	if m.config.InputSize > 0 {
		sx, sy = model.ScaleFactors(m.config.InputSize, src)
	}
	results := make([]postprocess.Result, 0, numRows)

	for i := 0; i < numRows; i++ {
		offset := i * RowSize
		score := data[offset+4]
		if score < threshold {
			continue
		}
		results = append(results, postprocess.Result{
			Box: images.Rect{
				X1: data[offset+0],
				Y1: data[offset+1],
				X2: data[offset+2],
				Y2: data[offset+3],
			}.Scale(sx, sy),
			Score: score,
			Class: int(data[offset+5]),
		})
	}

	return postprocess.ApplyGreedyNMS(results, m.config.NMS), nil
}

// Rows views a flat output as an (N, columns) matrix, dropping a leading batch dimension.
//
// Arguments:
//   - output: The flat output tensor. It is copied.
//   - shape: The output shape. The last dimension is the row width.
//
// Returns:
//   - *tensor.Dense: The matrix.
//   - error: An error if the shape is empty or does not match the data.
func Rows(output []float32, shape []int64) (*tensor.Dense, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("empty output shape")
	}
	cols := int(shape[len(shape)-1])
	if cols <= 0 {
		return nil, fmt.Errorf("invalid row width %d", cols)
	}
	if len(output)%cols != 0 {
		return nil, fmt.Errorf("output of %d floats is not a multiple of %d columns", len(output), cols)
	}

	backing := make([]float32, len(output))
	copy(backing, output)

	return tensor.New(
		tensor.WithShape(len(output)/cols, cols),
		tensor.WithBacking(backing),
	), nil
}
