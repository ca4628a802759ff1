package local

import (
	"sync"

	"github.com/mudler/xlog"
)

// Device is the processor a model is bound to.
type Device string

const (
	// DeviceCPU is the general processor.
	DeviceCPU Device = "cpu"
	// DeviceCUDA is the CUDA accelerator.
	DeviceCUDA Device = "cuda"
)

// DeviceState is the device selection state of one backend instance.
type DeviceState int

const (
	// Unselected means no probe has run yet.
	Unselected DeviceState = iota
	// ProbingAccelerator means the accelerator probe is running.
	ProbingAccelerator
	// AcceleratorReady means the accelerator is selected.
	AcceleratorReady
	// GeneralProcessorReady means the general processor is selected. It is terminal.
	GeneralProcessorReady
)

func (s DeviceState) String() string {
	switch s {
	case Unselected:
		return "unselected"
	case ProbingAccelerator:
		return "probing_accelerator"
	case AcceleratorReady:
		return "accelerator_ready"
	case GeneralProcessorReady:
		return "general_processor_ready"
	default:
		return "unknown"
	}
}

// Prober reports whether the accelerator can be used. A nil error selects it.
type Prober func() error

// deviceSelector holds the per-instance device decision. Downgrades are never reversed.
type deviceSelector struct {
	mu    sync.Mutex
	state DeviceState
}

func newDeviceSelector() *deviceSelector {
	return &deviceSelector{state: Unselected}
}

// probe runs once; later calls keep the first decision.
func (d *deviceSelector) probe(p Prober) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Unselected {
		return
	}
	d.state = ProbingAccelerator

	if p == nil {
		d.state = GeneralProcessorReady
		return
	}
	if err := p(); err != nil {
		xlog.Warn("Accelerator unavailable, using the general processor", "error", err)
		d.state = GeneralProcessorReady
		return
	}
	d.state = AcceleratorReady
	xlog.Debug("Accelerator selected", "device", DeviceCUDA)
}

// downgrade permanently selects the general processor.
func (d *deviceSelector) downgrade(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == GeneralProcessorReady {
		return
	}
	xlog.Warn("Downgrading to the general processor", "reason", reason, "from", d.state)
	d.state = GeneralProcessorReady
}

func (d *deviceSelector) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Device maps the state to a device. Only AcceleratorReady maps to the accelerator.
func (d *deviceSelector) Device() Device {
	if d.State() == AcceleratorReady {
		return DeviceCUDA
	}
	return DeviceCPU
}
