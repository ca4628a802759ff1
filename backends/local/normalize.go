package local

import (
	"fmt"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/models"
	"gorgonia.org/tensor"
)

// Fabricated detection emitted by the guess fallback.
const (
	guessConfidence = 0.5
	guessMin        = 0.1
	guessMax        = 0.9
)

type normalizeOptions struct {
	// Names is the resolved class table of the backend. It labels outputs that carry no table of
	// their own and feeds the guess fallback.
	Names models.ClassNames
	// GuessOnUnrecognized emits one fabricated detection when nothing could be decoded.
	GuessOnUnrecognized bool
}

// normalize converts a native output into canonical detections. It never fails: a decoding panic
// yields an empty list.
func normalize(out Output, opts normalizeOptions) (dets []detection.Detection) {
	defer func() {
		if r := recover(); r != nil {
			xlog.Warn("Could not normalize model output", "output", fmt.Sprintf("%T", out), "error", r)
			dets = []detection.Detection{}
		}
		if len(dets) == 0 {
			xlog.Warn("Model produced no detections", "output", fmt.Sprintf("%T", out))
		}
	}()

	switch o := out.(type) {
	case *BoxesOutput:
		dets = fromBoxes(o, classTable(o.Names, opts.Names))
	case *TableOutput:
		dets = fromTable(o, opts.Names)
	case *ClassificationOutput:
		dets = fromClassification(o, classTable(o.Names, opts.Names))
	case *RawOutput:
		dets = fromRaw(o, classTable(o.Names, opts.Names))
		if len(dets) == 0 && opts.GuessOnUnrecognized {
			dets = guess(opts.Names)
		}
	default:
		xlog.Warn("Unrecognized model output", "output", fmt.Sprintf("%T", out))
		if opts.GuessOnUnrecognized {
			dets = guess(opts.Names)
		}
	}

	if dets == nil {
		dets = []detection.Detection{}
	}
	return dets
}

// classTable returns own unless it is empty.
func classTable(own, fallback models.ClassNames) models.ClassNames {
	if len(own) > 0 {
		return own
	}
	return fallback
}

func fromBoxes(o *BoxesOutput, names models.ClassNames) []detection.Detection {
	dets := make([]detection.Detection, 0, len(o.Boxes))
	for _, b := range o.Boxes {
		dets = append(dets, detection.NewDetection(
			names.Name(b.Class),
			b.Class,
			b.Conf,
			detection.Box{X1: b.XYXY[0], Y1: b.XYXY[1], X2: b.XYXY[2], Y2: b.XYXY[3]},
		))
	}
	return dets
}

func fromTable(o *TableOutput, names models.ClassNames) []detection.Detection {
	dets := make([]detection.Detection, 0, len(o.Rows))
	for _, r := range o.Rows {
		name := r.Name
		if name == "" {
			name = names.Name(r.Class)
		}
		dets = append(dets, detection.NewDetection(
			name,
			r.Class,
			r.Confidence,
			detection.Box{X1: r.XMin, Y1: r.YMin, X2: r.XMax, Y2: r.YMax},
		))
	}
	return dets
}

func fromClassification(o *ClassificationOutput, names models.ClassNames) []detection.Detection {
	if o.Top1 < 0 {
		return nil
	}
	return []detection.Detection{
		detection.NewDetection(names.Name(o.Top1), o.Top1, o.Top1Conf, detection.Box{X1: 0, Y1: 0, X2: 1, Y2: 1}),
	}
}

func fromRaw(o *RawOutput, names models.ClassNames) []detection.Detection {
	if o.Boxes == nil {
		return nil
	}

	var rows, cols int
	switch shape := o.Boxes.Shape(); len(shape) {
	case 1:
		rows, cols = 1, shape[0]
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		xlog.Warn("Raw output is not a box array", "shape", shape)
		return nil
	}
	if cols < 5 {
		return nil
	}

	values := rawValues(o.Boxes)
	dets := make([]detection.Detection, 0, rows)
	for i := 0; i < rows; i++ {
		row := values[i*cols : (i+1)*cols]

		cls := 0
		if cols > 5 {
			cls = int(row[5])
		}

		box := detection.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
		if o.Format == FormatXYWH {
			box = detection.BoxFromCenter(row[0], row[1], row[2], row[3])
		}

		dets = append(dets, detection.NewDetection(names.Name(cls), cls, row[4], box))
	}
	return dets
}

// rawValues flattens the tensor in row-major order as float64.
func rawValues(t *tensor.Dense) []float64 {
	switch data := t.Data().(type) {
	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out
	case []float64:
		return data
	case float32:
		return []float64{float64(data)}
	case float64:
		return []float64{data}
	default:
		panic(fmt.Sprintf("unsupported raw tensor type %T", data))
	}
}

// guess fabricates one detection labelled with the first known class. Without any class name
// there is nothing to label it with, so nothing is emitted.
func guess(names models.ClassNames) []detection.Detection {
	class, ok := names.First()
	if !ok {
		xlog.Warn("No class names to guess a detection from")
		return nil
	}
	xlog.Warn("Emitting a guessed detection for an unrecognized output", "class", class)
	return []detection.Detection{
		detection.NewDetection(class, 0, guessConfidence, detection.Box{X1: guessMin, Y1: guessMin, X2: guessMax, Y2: guessMax}),
	}
}
