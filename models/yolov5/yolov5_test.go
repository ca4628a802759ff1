package yolov5

import (
	"image"
	"testing"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYOLOv5PostProcess(t *testing.T) {
	m, err := NewModel(model.Config{
		InputSize: 640,
		NMS:       &postprocess.NMSConfig{IoUThreshold: 0.5, ConfidenceThreshold: 0.25, ClassAware: true},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ModelNameYOLOv5, m.Name())

	output := []float32{
		// cx, cy, w, h, obj, class0, class1
		320, 320, 64, 64, 0.9, 0.2, 0.9,
		100, 100, 20, 20, 0.2, 0.9, 0.1, // objectness below threshold
		200, 200, 40, 40, 0.5, 0.4, 0.3, // 0.5 * 0.4 = 0.2 below threshold
	}

	results, err := m.PostProcess(output, []int64{1, 3, 7}, image.Pt(320, 320))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, results[0].Class)
	assert.InDelta(t, 0.81, results[0].Score, 0.0001)
	assert.InDelta(t, 144, results[0].Box.X1, 0.01)
	assert.InDelta(t, 176, results[0].Box.X2, 0.01)
}

func TestYOLOv5InvalidShape(t *testing.T) {
	m, err := NewModel(model.Config{InputSize: 640})
	require.NoError(t, err)

	tests := []struct {
		name   string
		output []float32
		shape  []int64
	}{
		{name: "too few columns", output: make([]float32, 8), shape: []int64{1, 2, 4}},
		{name: "short data", output: make([]float32, 3), shape: []int64{1, 1, 7}},
		{name: "4d shape", output: make([]float32, 7), shape: []int64{1, 1, 1, 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.PostProcess(tc.output, tc.shape, image.Pt(640, 640))
			assert.Error(t, err)
		})
	}
}
