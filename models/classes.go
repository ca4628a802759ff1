package models

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ClassNames maps the integer index returned by a model to its human-readable label.
type ClassNames map[int]string

// Name returns the label for idx, synthesizing "class_<idx>" when it is not mapped.
func (n ClassNames) Name(idx int) string {
	if name, ok := n[idx]; ok && name != "" {
		return name
	}
	return detection.ClassLabel(idx)
}

// First returns the label with the lowest index.
//
// Returns:
//   - string: The label.
//   - bool: False when there are no names.
func (n ClassNames) First() (string, bool) {
	if len(n) == 0 {
		return "", false
	}
	ids := make([]int, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return n[ids[0]], true
}

// FromList indexes a list of labels from zero.
func FromList(labels []string) ClassNames {
	names := make(ClassNames, len(labels))
	for i, l := range labels {
		names[i] = l
	}
	return names
}

// ParseNames parses a class-name table.
//
// Accepted forms are a YAML/JSON mapping ({0: person, 1: bicycle}, as written into the "names"
// metadata of Ultralytics exports), a sequence, or a dataset file with a top-level "names" key.
//
// Arguments:
//   - data: The encoded table.
//
// Returns:
//   - ClassNames: The table.
//   - error: An error if the data is none of the accepted forms.
func ParseNames(data []byte) (ClassNames, error) {
	var mapping map[int]string
	if err := yaml.Unmarshal(data, &mapping); err == nil && len(mapping) > 0 {
		return ClassNames(mapping), nil
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return FromList(list), nil
	}

	var dataset struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &dataset); err == nil && !dataset.Names.IsZero() {
		var nested map[int]string
		if err := dataset.Names.Decode(&nested); err == nil && len(nested) > 0 {
			return ClassNames(nested), nil
		}
		var nestedList []string
		if err := dataset.Names.Decode(&nestedList); err == nil && len(nestedList) > 0 {
			return FromList(nestedList), nil
		}
	}

	return nil, errors.New("unrecognized class name table")
}

// LoadNamesFile reads a class-name table from disk.
//
// YAML and JSON files go through ParseNames; any other file is read as one label per line.
//
// Arguments:
//   - path: The file path.
//
// Returns:
//   - ClassNames: The table.
//   - error: An error if the file cannot be read or parsed.
func LoadNamesFile(path string) (ClassNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read class names")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		names, err := ParseNames(data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		return names, nil
	}

	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("%s holds no class names", path)
	}
	return FromList(labels), nil
}

// COCO returns the 80 COCO labels as indexed by YOLO exports (no background class).
func COCO() ClassNames {
	return FromList(cocoLabels)
}

var cocoLabels = []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
}
