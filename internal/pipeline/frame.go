package pipeline

import (
	"image"

	"gocv.io/x/gocv"
)

// ImageToMat converts a decoded Go image into a BGR Mat for the pipeline.
// Callers that capture frames through gocv directly do not need this; it
// exists for collaborators that hand over image.Image buffers (file based
// harnesses, simulated capture sources).
func ImageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}
