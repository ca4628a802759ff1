package rfdetr

import (
	"image"
	"testing"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRFDETRPostProcessConfidenceFiltering validates that low scoring rows are dropped.
//
// Arguments:
//   - t: The testing context for assertions and error reporting.
func TestRFDETRPostProcessConfidenceFiltering(t *testing.T) {
	m, err := NewModel(model.Config{
		NMS: &postprocess.NMSConfig{IoUThreshold: 0.6, ConfidenceThreshold: 0.5},
	})
	require.NoError(t, err)

	output := []float32{
		100.0, 150.0, 200.0, 250.0, 0.75, 1.0,
		300.0, 400.0, 450.0, 500.0, 0.45, 2.0,
		500.0, 600.0, 650.0, 700.0, 0.85, 3.0,
	}

	results, err := m.PostProcess(output, []int64{1, 3, 6}, image.Pt(1000, 1000))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, float32(0.85), results[0].Score)
	assert.Equal(t, 3, results[0].Class)
	assert.Equal(t, float32(100.0), results[1].Box.X1)
	assert.Equal(t, float32(250.0), results[1].Box.Y2)
}

func TestRFDETRPostProcessInvalidTensorSize(t *testing.T) {
	m, err := NewModel(model.Config{})
	require.NoError(t, err)

	_, err = m.PostProcess([]float32{1, 2, 3, 4, 5, 6, 7}, []int64{1, 1, 6}, image.Pt(10, 10))
	assert.Error(t, err)

	_, err = m.PostProcess([]float32{1, 2, 3, 4, 5}, []int64{1, 1, 5}, image.Pt(10, 10))
	assert.Error(t, err)
}

func TestRows(t *testing.T) {
	src := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	rows, err := Rows(src, []int64{1, 2, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, []int(rows.Shape()))

	v, err := rows.At(1, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(10), v)

	src[0] = 42
	v, err = rows.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v, "rows must not alias the output")

	_, err = Rows(src, nil)
	assert.Error(t, err)
	_, err = Rows(src, []int64{1, 3})
	assert.Error(t, err)
}
