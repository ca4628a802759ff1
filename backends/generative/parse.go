package generative

import (
	"regexp"
	"strconv"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
)

// DefaultClass labels detections whose class could not be read from the text.
const DefaultClass = "desconocido"

// classWindow is how far past the start of a coordinate match the class is searched for.
const classWindow = 200

var (
	coordinatePattern = regexp.MustCompile(`(?i)(?:coordenadas|coordinates)?.*?(\d+).*?(\d+).*?(\d+).*?(\d+).*?(confianza|confidence).*?(\d+(?:\.\d+)?)`)
	classPattern      = regexp.MustCompile(`(?i)(object|clase|class|objeto).*?([\p{L}\p{N}_]+)`)
)

// ParseDetections extracts detections from free model text.
//
// Every run of four integers followed by a confidence keyword and a number becomes one detection.
// The class is the word following an object/class keyword near the match, DefaultClass otherwise.
// Text without any match yields an empty slice; malformed matches are logged and skipped.
//
// Arguments:
//   - text: The model response text.
//
// Returns:
//   - []detection.Detection: The detections in text order, never nil.
func ParseDetections(text string) []detection.Detection {
	dets := []detection.Detection{}

	for _, m := range coordinatePattern.FindAllStringSubmatchIndex(text, -1) {
		det, err := parseMatch(text, m)
		if err != nil {
			xlog.Warn("Skipping malformed detection in model response", "match", text[m[0]:m[1]], "error", err)
			continue
		}
		dets = append(dets, det)
	}
	return dets
}

func parseMatch(text string, m []int) (detection.Detection, error) {
	group := func(i int) string {
		return text[m[2*i]:m[2*i+1]]
	}

	var coords [4]float64
	for i := range coords {
		v, err := strconv.Atoi(group(i + 1))
		if err != nil {
			return detection.Detection{}, err
		}
		coords[i] = float64(v)
	}

	confidence, err := strconv.ParseFloat(group(6), 64)
	if err != nil {
		return detection.Detection{}, err
	}

	end := m[0] + classWindow
	if end > len(text) {
		end = len(text)
	}
	class := DefaultClass
	if cm := classPattern.FindStringSubmatch(text[m[0]:end]); cm != nil {
		class = cm[2]
	}

	return detection.NewDetection(class, 0, confidence, detection.Box{
		X1: coords[0],
		Y1: coords[1],
		X2: coords[2],
		Y2: coords[3],
	}), nil
}
