package local

import (
	"github.com/nvr-ai/go-detect/models"
	"gorgonia.org/tensor"
)

// Output is the native output of one inference call. The set of variants is closed.
type Output interface {
	isOutput()
}

// BoxPrediction is one box of a modern detection head.
type BoxPrediction struct {
	XYXY  [4]float64
	Class int
	Conf  float64
}

// BoxesOutput is produced by the modern loader: per-box corners, class id and confidence.
type BoxesOutput struct {
	Boxes []BoxPrediction
	Names models.ClassNames
}

// TableRow is one row of a legacy results table.
type TableRow struct {
	Class      int
	Name       string
	Confidence float64
	XMin       float64
	YMin       float64
	XMax       float64
	YMax       float64
}

// TableOutput is produced by the legacy loader: named rows.
type TableOutput struct {
	Rows []TableRow
}

// ClassificationOutput is produced by classification models.
type ClassificationOutput struct {
	Top1     int
	Top1Conf float64
	Names    models.ClassNames
}

// BoxFormat is the column convention of a raw box array.
type BoxFormat string

const (
	// FormatXYXY rows are x1, y1, x2, y2, conf, cls.
	FormatXYXY BoxFormat = "xyxy"
	// FormatXYWH rows are center x, center y, w, h, conf, cls.
	FormatXYWH BoxFormat = "xywh"
)

// RawOutput is a generic box array from a raw network.
type RawOutput struct {
	Boxes  *tensor.Dense
	Format BoxFormat
	Names  models.ClassNames
}

func (*BoxesOutput) isOutput()          {}
func (*TableOutput) isOutput()          {}
func (*ClassificationOutput) isOutput() {}
func (*RawOutput) isOutput()            {}
