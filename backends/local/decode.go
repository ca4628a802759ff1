package local

import (
	"image"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// layoutDecoder decodes a network output with the decoder matching its shape. Decoders are created
// on first use.
type layoutDecoder struct {
	config   model.Config
	decoders map[model.Name]model.Decoder
}

func newLayoutDecoder(config Config) *layoutDecoder {
	return &layoutDecoder{
		config: model.Config{
			InputSize: config.InputSize,
			NMS:       nmsConfig(config),
		},
		decoders: make(map[model.Name]model.Decoder),
	}
}

// decode returns the thresholded, suppressed detections in source pixels.
//
// Arguments:
//   - data: The flat output tensor.
//   - shape: The output shape.
//   - src: The source image dimensions.
//
// Returns:
//   - model.Name: The detected layout.
//   - []postprocess.Result: The detections.
//   - error: An error if the shape fits no known layout or decoding fails.
func (d *layoutDecoder) decode(data []float32, shape []int64, src image.Point) (model.Name, []postprocess.Result, error) {
	layout, err := models.DetectLayout(shape)
	if err != nil {
		return "", nil, err
	}

	decoder, ok := d.decoders[layout]
	if !ok {
		decoder, err = models.NewDecoder(layout, d.config)
		if err != nil {
			return layout, nil, err
		}
		d.decoders[layout] = decoder
	}

	results, err := decoder.PostProcess(data, shape, src)
	return layout, results, err
}

func boxPredictions(results []postprocess.Result) []BoxPrediction {
	boxes := make([]BoxPrediction, 0, len(results))
	for _, r := range results {
		boxes = append(boxes, BoxPrediction{
			XYXY:  [4]float64{float64(r.Box.X1), float64(r.Box.Y1), float64(r.Box.X2), float64(r.Box.Y2)},
			Class: r.Class,
			Conf:  float64(r.Score),
		})
	}
	return boxes
}
