package local

import (
	"context"
	"image"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/rfdetr"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// dnnNet is an OpenCV DNN network bound to a device.
type dnnNet struct {
	net    gocv.Net
	size   int
	device Device
}

func newDNNNet(net gocv.Net, size int, device Device) (*dnnNet, error) {
	if net.Empty() {
		net.Close()
		return nil, errors.New("network is empty")
	}
	n := &dnnNet{net: net, size: size}
	n.bind(device)
	return n, nil
}

func (n *dnnNet) bind(device Device) {
	if device == DeviceCUDA {
		n.net.SetPreferableBackend(gocv.NetBackendCUDA)
		n.net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		n.net.SetPreferableBackend(gocv.NetBackendDefault)
		n.net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	n.device = device
}

// forward runs the network and returns a copy of the first output with its shape.
func (n *dnnNet) forward(img image.Image) ([]float32, []int64, error) {
	blob, err := images.NewBlob(img, n.size)
	if err != nil {
		return nil, nil, err
	}
	defer blob.Close()

	n.net.SetInput(blob, "")
	out := n.net.Forward("")
	defer out.Close()

	if out.Empty() {
		if n.device == DeviceCUDA {
			return nil, nil, errors.Wrap(detection.ErrDevice, "forward pass produced no output")
		}
		return nil, nil, errors.New("forward pass produced no output")
	}

	ptr, err := out.DataPtrFloat32()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read forward output")
	}
	data := make([]float32, len(ptr))
	copy(data, ptr)

	dims := out.Size()
	shape := make([]int64, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}
	return data, shape, nil
}

func (n *dnnNet) Close() error {
	return n.net.Close()
}

// legacyModel is a previous-generation export returning named rows.
type legacyModel struct {
	net     *dnnNet
	decoder *layoutDecoder
	names   models.ClassNames
}

// loadLegacy reads a previous-generation export through OpenCV DNN.
func loadLegacy(ctx context.Context, req LoadRequest) (Model, error) {
	net, err := newDNNNet(gocv.ReadNetFromONNX(req.Path), req.Config.InputSize, req.Device)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", req.Path)
	}
	return &legacyModel{net: net, decoder: newLayoutDecoder(req.Config), names: req.Names}, nil
}

func (m *legacyModel) Call(ctx context.Context, img image.Image) (Output, error) {
	data, shape, err := m.net.forward(img)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	return m.table(data, shape, image.Pt(bounds.Dx(), bounds.Dy()))
}

// table decodes the forward output by its layout. Rows keep an empty name when the model carries
// no class table of its own.
func (m *legacyModel) table(data []float32, shape []int64, src image.Point) (*TableOutput, error) {
	layout, results, err := m.decoder.decode(data, shape, src)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode output %v", shape)
	}
	if layout != model.ModelNameYOLOv5 {
		xlog.Debug("Legacy network returned a newer output layout", "layout", layout, "shape", shape)
	}

	rows := make([]TableRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, TableRow{
			Class:      r.Class,
			Name:       m.names[r.Class],
			Confidence: float64(r.Score),
			XMin:       float64(r.Box.X1),
			YMin:       float64(r.Box.Y1),
			XMax:       float64(r.Box.X2),
			YMax:       float64(r.Box.Y2),
		})
	}
	return &TableOutput{Rows: rows}, nil
}

func (m *legacyModel) MoveTo(ctx context.Context, device Device) error {
	m.net.bind(device)
	return nil
}

func (m *legacyModel) ClassNames() models.ClassNames {
	return m.names
}

func (m *legacyModel) Close() error {
	return m.net.Close()
}

// rawModel is a network of unknown family; only its forward computation is used.
type rawModel struct {
	net     *dnnNet
	decoder *layoutDecoder
	names   models.ClassNames
}

func (m *rawModel) Forward(ctx context.Context, img image.Image) (Output, error) {
	data, shape, err := m.net.forward(img)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	return m.output(data, shape, image.Pt(bounds.Dx(), bounds.Dy()))
}

// output decodes a known layout into boxes. Any other shape is handed on as a generic box array,
// six-column rows as corners and the rest as centers.
func (m *rawModel) output(data []float32, shape []int64, src image.Point) (Output, error) {
	_, results, err := m.decoder.decode(data, shape, src)
	if err == nil {
		return &BoxesOutput{Boxes: boxPredictions(results), Names: m.names}, nil
	}
	xlog.Debug("Raw output fits no known layout", "shape", shape, "error", err)

	rows, err := rfdetr.Rows(data, shape)
	if err != nil {
		return nil, err
	}
	format := FormatXYWH
	if rows.Shape()[1] == rfdetr.RowSize {
		format = FormatXYXY
	}
	return &RawOutput{Boxes: rows, Format: format, Names: m.names}, nil
}

func (m *rawModel) MoveTo(ctx context.Context, device Device) error {
	m.net.bind(device)
	return nil
}

func (m *rawModel) ClassNames() models.ClassNames {
	return m.names
}

func (m *rawModel) Close() error {
	return m.net.Close()
}

// nestedModel is a checkpoint wrapper around an inner network used in evaluation mode.
type nestedModel struct {
	manifest string
	inner    *rawModel
}

func (m *nestedModel) Inner() Forwarder {
	return m.inner
}

func (m *nestedModel) MoveTo(ctx context.Context, device Device) error {
	return m.inner.MoveTo(ctx, device)
}

func (m *nestedModel) ClassNames() models.ClassNames {
	return m.inner.names
}

func (m *nestedModel) Close() error {
	return m.inner.Close()
}
