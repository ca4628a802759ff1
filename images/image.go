// Package images - Image decoding, encoding and tensor preparation.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// NewImage inspects encoded bytes and records their format and dimensions.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - *Image: The image descriptor.
//   - error: An error if the format is unsupported or the header is unreadable.
func NewImage(data []byte) (*Image, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}

	var cfg image.Config
	switch format {
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	case FormatPNG:
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
	case FormatWebP:
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s header", format)
	}

	return &Image{
		Format: format,
		Data:   data,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Decode decodes the image bytes into a Go-native image.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if decoding fails.
func (i *Image) Decode() (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch i.Format {
	case FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(i.Data))
	case FormatPNG:
		img, err = png.Decode(bytes.NewReader(i.Data))
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(i.Data))
	default:
		return nil, errors.Errorf("unsupported image format %q", i.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s image", i.Format)
	}
	return img, nil
}

// Decode sniffs and decodes encoded image bytes in one step.
//
// Arguments:
//   - data: The encoded image bytes (JPEG, PNG or WebP).
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the bytes are not a supported image.
func Decode(data []byte) (image.Image, error) {
	img, err := NewImage(data)
	if err != nil {
		return nil, err
	}
	return img.Decode()
}

// EncodeJPEG encodes an image as JPEG.
//
// Arguments:
//   - img: The image to encode.
//   - quality: The JPEG quality (1-100). Zero selects the encoder default.
//
// Returns:
//   - []byte: The JPEG bytes.
//   - error: An error if encoding fails.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	var opts *jpeg.Options
	if quality > 0 {
		opts = &jpeg.Options{Quality: quality}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, errors.Wrap(err, "failed to encode jpeg")
	}
	return buf.Bytes(), nil
}
