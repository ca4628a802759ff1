package dispatch

import (
	"context"
	"time"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
)

// Sink persists a normalized result and returns a durable record identifier.
type Sink interface {
	Record(ctx context.Context, result *detection.Result, elapsed time.Duration, kind detection.BackendKind) (string, error)
}

// ImageLinker is implemented by sinks that can also store the analyzed image.
type ImageLinker interface {
	LinkImage(ctx context.Context, upload ImageUpload) (*SavedImage, error)
}

// ImageUpload is an image to store next to a detection record.
type ImageUpload struct {
	DetectionID       string
	Filename          string
	Data              []byte
	Format            images.ImageFormat
	TakenAt           time.Time
	LightingCondition string
	Metadata          any
}

// SavedImage identifies a stored image.
type SavedImage struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Request is one inbound analysis request.
type Request struct {
	// Image holds the encoded image bytes.
	Image []byte
	// Filename is the client-side file name, informational.
	Filename string
	// Backend is the backend selector.
	Backend string
	// SaveImage asks for the image to be stored next to the record.
	SaveImage bool
	// Metadata is stored with the image. The result is used when it is empty.
	Metadata map[string]any
	// LightingCondition is stored with the image.
	LightingCondition string
}

// Response is the outcome of one analysis request.
type Response struct {
	DetectionID    string            `json:"detection_id"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Results        *detection.Result `json:"results"`
	SavedImage     *SavedImage       `json:"saved_image,omitempty"`
}

// Service validates requests, dispatches them and records the outcome.
type Service struct {
	dispatcher *Dispatcher
	sink       Sink
}

// NewService creates a request service.
//
// Arguments:
//   - dispatcher: The dispatcher.
//   - sink: The persistence sink.
//
// Returns:
//   - *Service: The service.
func NewService(dispatcher *Dispatcher, sink Sink) *Service {
	return &Service{dispatcher: dispatcher, sink: sink}
}

// Dispatcher returns the underlying dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Analyze runs one request end to end.
//
// Storing the image is best effort: a failure is logged and the detection record is kept.
//
// Arguments:
//   - ctx: The context.
//   - req: The inbound request.
//
// Returns:
//   - *Response: The record id, timing and result.
//   - error: A *detection.ValidationFailure for bad input, or the dispatch or sink error.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	if len(req.Image) == 0 {
		return nil, &detection.ValidationFailure{Field: "image", Reason: "no image provided"}
	}

	upload, err := images.NewImage(req.Image)
	if err != nil {
		return nil, &detection.ValidationFailure{Field: "image", Reason: err.Error()}
	}
	img, err := upload.Decode()
	if err != nil {
		return nil, &detection.ValidationFailure{Field: "image", Reason: err.Error()}
	}

	outcome, err := s.dispatcher.Dispatch(ctx, req.Backend, img)
	if err != nil {
		return nil, err
	}

	id, err := s.sink.Record(ctx, outcome.Result, outcome.Elapsed, outcome.Result.Backend)
	if err != nil {
		return nil, errors.Wrap(err, "failed to record detection")
	}

	resp := &Response{
		DetectionID:    id,
		ElapsedSeconds: outcome.Elapsed.Seconds(),
		Results:        outcome.Result,
	}

	if req.SaveImage {
		resp.SavedImage = s.linkImage(ctx, id, req, upload, outcome.Result)
	}
	return resp, nil
}

func (s *Service) linkImage(ctx context.Context, id string, req Request, upload *images.Image, result *detection.Result) *SavedImage {
	linker, ok := s.sink.(ImageLinker)
	if !ok {
		xlog.Warn("Sink cannot store images, skipping", "detection_id", id)
		return nil
	}

	var metadata any = req.Metadata
	if len(req.Metadata) == 0 {
		metadata = result
	}

	saved, err := linker.LinkImage(ctx, ImageUpload{
		DetectionID:       id,
		Filename:          req.Filename,
		Data:              req.Image,
		Format:            upload.Format,
		TakenAt:           time.Now(),
		LightingCondition: req.LightingCondition,
		Metadata:          metadata,
	})
	if err != nil {
		xlog.Warn("Failed to store image, keeping detection record", "detection_id", id, "error", err)
		return nil
	}
	return saved
}
