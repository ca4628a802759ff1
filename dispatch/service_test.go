package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	records []*detection.Result
	kinds   []detection.BackendKind
	err     error
}

func (s *recordingSink) Record(ctx context.Context, result *detection.Result, elapsed time.Duration, kind detection.BackendKind) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.records = append(s.records, result)
	s.kinds = append(s.kinds, kind)
	return "rec-1", nil
}

type linkingSink struct {
	recordingSink
	uploads []ImageUpload
	linkErr error
}

func (s *linkingSink) LinkImage(ctx context.Context, upload ImageUpload) (*SavedImage, error) {
	s.uploads = append(s.uploads, upload)
	if s.linkErr != nil {
		return nil, s.linkErr
	}
	return &SavedImage{ID: "img-1", Path: "images/img-1.png"}, nil
}

func newService(sink Sink) *Service {
	calls := 0
	return NewService(New(countingRegistry(allFakes(), &calls)), sink)
}

func TestAnalyzeRecords(t *testing.T) {
	sink := &recordingSink{}
	resp, err := newService(sink).Analyze(context.Background(), Request{Image: pngBytes(t), Backend: "yolo"})
	require.NoError(t, err)

	assert.Equal(t, "rec-1", resp.DetectionID)
	assert.Equal(t, 1, resp.Results.Count)
	assert.Nil(t, resp.SavedImage)
	require.Len(t, sink.kinds, 1)
	assert.Equal(t, detection.BackendLocal, sink.kinds[0])
}

func TestAnalyzeValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "no image", req: Request{Backend: "local"}},
		{name: "not an image", req: Request{Image: []byte("hello world"), Backend: "local"}},
		{name: "unknown backend", req: Request{Image: pngBytes(t), Backend: "unknown_backend"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			_, err := newService(sink).Analyze(context.Background(), tc.req)
			var vf *detection.ValidationFailure
			require.ErrorAs(t, err, &vf)
			assert.Empty(t, sink.records)
		})
	}
}

func TestAnalyzeSinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	_, err := newService(sink).Analyze(context.Background(), Request{Image: pngBytes(t), Backend: "local"})
	assert.ErrorContains(t, err, "disk full")
}

func TestAnalyzeLinksImage(t *testing.T) {
	sink := &linkingSink{}
	resp, err := newService(sink).Analyze(context.Background(), Request{
		Image:             pngBytes(t),
		Backend:           "local",
		SaveImage:         true,
		LightingCondition: "night",
	})
	require.NoError(t, err)

	require.NotNil(t, resp.SavedImage)
	assert.Equal(t, "img-1", resp.SavedImage.ID)
	require.Len(t, sink.uploads, 1)
	assert.Equal(t, "rec-1", sink.uploads[0].DetectionID)
	assert.Equal(t, "night", sink.uploads[0].LightingCondition)
	assert.Same(t, resp.Results, sink.uploads[0].Metadata, "the result is the default image metadata")
}

func TestAnalyzeKeepsSuppliedMetadata(t *testing.T) {
	sink := &linkingSink{}
	meta := map[string]any{"camera": "dock-2"}
	_, err := newService(sink).Analyze(context.Background(), Request{
		Image:     pngBytes(t),
		Backend:   "local",
		SaveImage: true,
		Metadata:  meta,
	})
	require.NoError(t, err)
	require.Len(t, sink.uploads, 1)
	assert.Equal(t, meta, sink.uploads[0].Metadata)
}

func TestAnalyzeLinkFailureKeepsRecord(t *testing.T) {
	sink := &linkingSink{linkErr: errors.New("permission denied")}
	resp, err := newService(sink).Analyze(context.Background(), Request{
		Image:     pngBytes(t),
		Backend:   "local",
		SaveImage: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", resp.DetectionID)
	assert.Nil(t, resp.SavedImage)
	assert.Len(t, sink.records, 1)
}
