package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNames(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    ClassNames
		wantErr bool
	}{
		{
			name: "ultralytics metadata flow mapping",
			data: "{0: 'person', 1: 'bicycle', 2: 'car'}",
			want: ClassNames{0: "person", 1: "bicycle", 2: "car"},
		},
		{
			name: "json list",
			data: `["crate", "pallet"]`,
			want: ClassNames{0: "crate", 1: "pallet"},
		},
		{
			name: "dataset file with names list",
			data: "path: data\nnames:\n  - bag\n  - box\n",
			want: ClassNames{0: "bag", 1: "box"},
		},
		{
			name: "dataset file with names mapping",
			data: "nc: 2\nnames:\n  3: forklift\n  7: helmet\n",
			want: ClassNames{3: "forklift", 7: "helmet"},
		},
		{
			name:    "scalar",
			data:    "just text",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseNames([]byte(tc.data))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassNames(t *testing.T) {
	names := ClassNames{2: "crate", 5: "pallet"}
	assert.Equal(t, "crate", names.Name(2))
	assert.Equal(t, "class_9", names.Name(9))

	first, ok := names.First()
	require.True(t, ok)
	assert.Equal(t, "crate", first)

	_, ok = ClassNames{}.First()
	assert.False(t, ok)
}

func TestLoadNamesFile(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "coco.names")
	require.NoError(t, os.WriteFile(txt, []byte("person\n\nbicycle\n"), 0o600))
	names, err := LoadNamesFile(txt)
	require.NoError(t, err)
	assert.Equal(t, ClassNames{0: "person", 1: "bicycle"}, names)

	yml := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("names: [a, b, c]\n"), 0o600))
	names, err = LoadNamesFile(yml)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = LoadNamesFile(empty)
	assert.Error(t, err)

	_, err = LoadNamesFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestCOCO(t *testing.T) {
	coco := COCO()
	assert.Len(t, coco, 80)
	assert.Equal(t, "person", coco.Name(0))
	assert.Equal(t, "toothbrush", coco.Name(79))
}
