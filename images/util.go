package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// NewBlob converts an image into a normalized NCHW blob for an OpenCV DNN network.
//
// Arguments:
//   - img: The source image.
//   - size: The square network input edge length.
//
// Returns:
//   - gocv.Mat: The blob. The caller must close it.
//   - error: An error if the image cannot be converted.
func NewBlob(img image.Image, size int) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "failed to convert image to mat")
	}
	defer mat.Close()

	if mat.Empty() {
		return gocv.NewMat(), errors.New("empty image")
	}

	// The mat is already RGB so channels are not swapped.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), false, false)
	return blob, nil
}
