package generative

import (
	"testing"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDetections(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []detection.Detection
	}{
		{
			name: "no coordinate patterns",
			text: "I can see a cat sitting on a chair, but I cannot give exact positions.",
			want: []detection.Detection{},
		},
		{
			name: "spanish answer",
			text: "Objeto: persona, coordenadas (10, 20, 110, 220), confianza 0.92",
			want: []detection.Detection{
				{Class: "persona", Confidence: 0.92, Box: detection.Box{X1: 10, Y1: 20, X2: 110, Y2: 220}},
			},
		},
		{
			name: "accented class names are kept whole",
			text: "Objeto: cámara, coordenadas (10, 20, 30, 40), confianza 0.9\nObjeto: ánfora, coordenadas (1, 2, 3, 4), confianza 0.4",
			want: []detection.Detection{
				{Class: "cámara", Confidence: 0.9, Box: detection.Box{X1: 10, Y1: 20, X2: 30, Y2: 40}},
				{Class: "ánfora", Confidence: 0.4, Box: detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}},
			},
		},
		{
			name: "one detection per line",
			text: "Object: car coordinates (5, 6, 7, 8) confidence 0.5\nObject: dog coordinates (1, 2, 3, 4) confidence 0.75",
			want: []detection.Detection{
				{Class: "car", Confidence: 0.5, Box: detection.Box{X1: 5, Y1: 6, X2: 7, Y2: 8}},
				{Class: "dog", Confidence: 0.75, Box: detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}},
			},
		},
		{
			name: "missing class keeps the default",
			text: "Coordinates: 1, 2, 3, 4 with confidence 80",
			want: []detection.Detection{
				{Class: DefaultClass, Confidence: 80, Box: detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}},
			},
		},
		{
			name: "overflowing coordinate is skipped",
			text: "coordinates 99999999999999999999999 1 2 3 confidence 0.5",
			want: []detection.Detection{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDetections(tc.text)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got)
		})
	}
}
