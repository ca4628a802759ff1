package local

import (
	"testing"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestNormalizeClassification(t *testing.T) {
	dets := normalize(&ClassificationOutput{Top1: 2, Top1Conf: 0.77, Names: models.ClassNames{2: "crate"}}, normalizeOptions{})
	require.Len(t, dets, 1)
	assert.Equal(t, "crate", dets[0].Class)
	assert.Equal(t, 0.77, dets[0].Confidence)
	assert.Equal(t, detection.Box{X1: 0, Y1: 0, X2: 1, Y2: 1}, dets[0].Box)
}

func TestNormalizeBoxes(t *testing.T) {
	out := &BoxesOutput{
		Boxes: []BoxPrediction{
			{XYXY: [4]float64{10, 20, 30, 40}, Class: 0, Conf: 0.9},
			{XYXY: [4]float64{1, 2, 3, 4}, Class: 7, Conf: 1.7},
		},
		Names: models.ClassNames{0: "person"},
	}

	dets := normalize(out, normalizeOptions{})
	require.Len(t, dets, 2)
	assert.Equal(t, "person", dets[0].Class)
	assert.Equal(t, detection.Box{X1: 10, Y1: 20, X2: 30, Y2: 40}, dets[0].Box)
	assert.Equal(t, "class_7", dets[1].Class)
	assert.Equal(t, 1.7, dets[1].Confidence, "confidence must not be clamped")
}

func TestNormalizeTable(t *testing.T) {
	out := &TableOutput{Rows: []TableRow{
		{Class: 1, Name: "bag", Confidence: 0.6, XMin: 1, YMin: 2, XMax: 3, YMax: 4},
		{Class: 4, Confidence: 0.4, XMin: 5, YMin: 6, XMax: 7, YMax: 8},
	}}

	dets := normalize(out, normalizeOptions{})
	require.Len(t, dets, 2)
	assert.Equal(t, "bag", dets[0].Class)
	assert.Equal(t, detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, dets[0].Box)
	assert.Equal(t, "class_4", dets[1].Class)
}

func TestNormalizeRaw(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int
		data    []float32
		format  BoxFormat
		opts    normalizeOptions
		want    []detection.Detection
		wantLen int
	}{
		{
			name:   "xywh rows are converted to corners",
			shape:  []int{1, 6},
			data:   []float32{100, 100, 50, 40, 0.8, 1},
			format: FormatXYWH,
			want: []detection.Detection{
				{Class: "bag", Confidence: float64(float32(0.8)), Box: detection.Box{X1: 75, Y1: 80, X2: 125, Y2: 120}},
			},
		},
		{
			name:   "xyxy rows without class column default to class zero",
			shape:  []int{1, 5},
			data:   []float32{1, 2, 3, 4, 0.5},
			format: FormatXYXY,
			want: []detection.Detection{
				{Class: "person", Confidence: 0.5, Box: detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}},
			},
		},
		{
			name:    "rows shorter than five are skipped",
			shape:   []int{2, 4},
			data:    []float32{1, 2, 3, 4, 5, 6, 7, 8},
			format:  FormatXYXY,
			wantLen: 0,
		},
		{
			name:   "guess fallback emits the first class when enabled",
			shape:  []int{2, 4},
			data:   []float32{1, 2, 3, 4, 5, 6, 7, 8},
			format: FormatXYXY,
			opts:   normalizeOptions{GuessOnUnrecognized: true, Names: models.ClassNames{3: "crate", 1: "person"}},
			want: []detection.Detection{
				{Class: "person", Confidence: 0.5, Box: detection.Box{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.9}},
			},
		},
	}

	names := models.ClassNames{0: "person", 1: "bag"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := &RawOutput{
				Boxes:  tensor.New(tensor.WithShape(tc.shape...), tensor.WithBacking(tc.data)),
				Format: tc.format,
				Names:  names,
			}
			dets := normalize(out, tc.opts)
			require.NotNil(t, dets)
			if tc.want == nil {
				assert.Len(t, dets, tc.wantLen)
				return
			}
			require.Len(t, dets, len(tc.want))
			for i := range tc.want {
				assert.Equal(t, tc.want[i].Class, dets[i].Class)
				assert.InDelta(t, tc.want[i].Confidence, dets[i].Confidence, 1e-6)
				assert.InDelta(t, tc.want[i].Box.X1, dets[i].Box.X1, 1e-6)
				assert.InDelta(t, tc.want[i].Box.Y1, dets[i].Box.Y1, 1e-6)
				assert.InDelta(t, tc.want[i].Box.X2, dets[i].Box.X2, 1e-6)
				assert.InDelta(t, tc.want[i].Box.Y2, dets[i].Box.Y2, 1e-6)
			}
		})
	}
}

func TestNormalizeNeverPanics(t *testing.T) {
	// An integer tensor cannot be read as boxes.
	bad := &RawOutput{Boxes: tensor.New(tensor.WithShape(1, 6), tensor.WithBacking([]int{1, 2, 3, 4, 5, 6}))}

	var dets []detection.Detection
	assert.NotPanics(t, func() {
		dets = normalize(bad, normalizeOptions{})
	})
	assert.NotNil(t, dets)
	assert.Empty(t, dets)

	assert.NotPanics(t, func() {
		dets = normalize(&RawOutput{}, normalizeOptions{})
	})
	assert.Empty(t, dets)
}

func TestNormalizeUnrecognizedOutput(t *testing.T) {
	assert.Empty(t, normalize(nil, normalizeOptions{}))

	dets := normalize(nil, normalizeOptions{GuessOnUnrecognized: true})
	assert.Empty(t, dets, "no class names means nothing to guess")

	dets = normalize(nil, normalizeOptions{GuessOnUnrecognized: true, Names: models.ClassNames{0: "person"}})
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].Class)
}

func TestNormalizeFallsBackToBackendNames(t *testing.T) {
	backendNames := models.ClassNames{0: "person", 3: "crate"}
	opts := normalizeOptions{Names: backendNames}

	boxes := normalize(&BoxesOutput{Boxes: []BoxPrediction{{Class: 3, Conf: 0.5}}}, opts)
	require.Len(t, boxes, 1)
	assert.Equal(t, "crate", boxes[0].Class)

	table := normalize(&TableOutput{Rows: []TableRow{{Class: 3, Confidence: 0.5}}}, opts)
	require.Len(t, table, 1)
	assert.Equal(t, "crate", table[0].Class)

	class := normalize(&ClassificationOutput{Top1: 0, Top1Conf: 0.5}, opts)
	require.Len(t, class, 1)
	assert.Equal(t, "person", class[0].Class)

	own := normalize(&BoxesOutput{Boxes: []BoxPrediction{{Class: 3}}, Names: models.ClassNames{3: "box"}}, opts)
	require.Len(t, own, 1)
	assert.Equal(t, "box", own[0].Class, "the output's own table wins")
}
