package images

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// PrepareCHW resizes an image to a square model input and lays it out as planar RGB floats.
//
// Arguments:
//   - img: The image to prepare.
//   - size: The model input edge length (e.g. 640).
//   - dst: The destination buffer. It must hold at least 3*size*size floats.
//
// Returns:
//   - error: An error if the destination is too small.
func PrepareCHW(img image.Image, size int, dst []float32) error {
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return fmt.Errorf("destination only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	bounds := resized.Bounds()

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

// NewCHW allocates and fills a planar RGB buffer for a square model input.
func NewCHW(img image.Image, size int) ([]float32, error) {
	dst := make([]float32, 3*size*size)
	if err := PrepareCHW(img, size, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
