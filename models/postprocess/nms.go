// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// NMSConfig defines parameters for confidence filtering and Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which the weaker box is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ConfidenceThreshold drops candidates scoring below it before suppression.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// MaxDetections caps the number of kept boxes. Zero means no cap.
	MaxDetections int `json:"max_detections" yaml:"max_detections"`
	// ClassAware suppresses only boxes that share a class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// DefaultNMSConfig returns the thresholds used by the Ultralytics exports.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{
		IoUThreshold:        0.45,
		ConfidenceThreshold: 0.25,
		MaxDetections:       300,
		ClassAware:          true,
	}
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// The detections are ordered by descending score first; the input slice is not modified.
//
// Arguments:
//   - detections: The candidate detections.
//   - config: The NMS configuration. A nil config only sorts.
//
// Returns:
//   - Filtered slice of detections, highest score first. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Result, config *NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]Result, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if config == nil {
		return sorted
	}

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		if config.MaxDetections > 0 && len(filtered) >= config.MaxDetections {
			break
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
