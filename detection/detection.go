// Package detection - Canonical detection schema shared by every backend.
package detection

import (
	"fmt"
)

// BackendKind identifies which backend produced a result.
type BackendKind string

const (
	// BackendLocal is the on-host neural network backend.
	BackendLocal BackendKind = "local"
	// BackendRemoteVision is the hosted vision detection API backend.
	BackendRemoteVision BackendKind = "remote_vision"
	// BackendRemoteGenerative is the hosted text+image generative model backend.
	BackendRemoteGenerative BackendKind = "remote_generative"
)

// BackendKinds lists every supported backend kind.
var BackendKinds = []BackendKind{BackendLocal, BackendRemoteVision, BackendRemoteGenerative}

// Valid reports whether k is one of the known backend kinds.
func (k BackendKind) Valid() bool {
	for _, known := range BackendKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Box is a bounding box in corner convention (x1, y1, x2, y2).
//
// Units are whatever the producing backend emitted (pixels or normalized); no reconciliation
// between backends is performed.
type Box struct {
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
	X2 float64 `json:"x2" yaml:"x2"`
	Y2 float64 `json:"y2" yaml:"y2"`
}

// BoxFromCenter converts a center/size box into corner convention.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The width and height of the box.
//
// Returns:
//   - Box: The box in corner convention.
func BoxFromCenter(cx, cy, w, h float64) Box {
	return Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Detection is one located, classified object instance.
type Detection struct {
	// Class is the backend-specific class label. Never empty.
	Class string `json:"class"`
	// Confidence is passed through exactly as the backend reported it.
	Confidence float64 `json:"confidence"`
	// Box is the bounding box in corner convention.
	Box Box `json:"bbox"`
}

// NewDetection creates a detection, synthesizing a label when the class is unknown.
//
// Arguments:
//   - class: The class label, may be empty when only classID is known.
//   - classID: The numeric class id used to synthesize "class_<id>" for empty labels.
//   - confidence: The confidence score. It is not clamped.
//   - box: The bounding box in corner convention.
//
// Returns:
//   - Detection: The detection.
func NewDetection(class string, classID int, confidence float64, box Box) Detection {
	if class == "" {
		class = ClassLabel(classID)
	}
	return Detection{
		Class:      class,
		Confidence: confidence,
		Box:        box,
	}
}

// ClassLabel synthesizes the fallback label for a class id that has no name mapping.
func ClassLabel(classID int) string {
	return fmt.Sprintf("class_%d", classID)
}

// String formats the detection for logs.
func (d Detection) String() string {
	return fmt.Sprintf("%s (confidence %f): (%f, %f), (%f, %f)",
		d.Class, d.Confidence, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}

// Result is the canonical envelope returned by every backend.
type Result struct {
	// Detections are kept in backend emission order.
	Detections []Detection `json:"detections"`
	// Count always equals len(Detections).
	Count int `json:"count"`
	// Backend is the kind of backend that produced the result.
	Backend BackendKind `json:"model_type"`
	// Metadata is an informational, backend-specific side channel.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult builds a result and fixes its count.
//
// Arguments:
//   - backend: The backend that produced the detections.
//   - detections: The detections in emission order. A nil slice becomes empty.
//   - metadata: Optional backend-specific metadata.
//
// Returns:
//   - *Result: The result.
func NewResult(backend BackendKind, detections []Detection, metadata map[string]any) *Result {
	if detections == nil {
		detections = []Detection{}
	}
	return &Result{
		Detections: detections,
		Count:      len(detections),
		Backend:    backend,
		Metadata:   metadata,
	}
}

// Validate checks the structural invariants of the result.
//
// Returns:
//   - error: An error if the count does not match the detections or the backend is unknown.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	if r.Count != len(r.Detections) {
		return fmt.Errorf("result count %d does not match %d detections", r.Count, len(r.Detections))
	}
	if !r.Backend.Valid() {
		return fmt.Errorf("unknown backend kind %q", r.Backend)
	}
	for i, d := range r.Detections {
		if d.Class == "" {
			return fmt.Errorf("detection %d has an empty class label", i)
		}
	}
	return nil
}
