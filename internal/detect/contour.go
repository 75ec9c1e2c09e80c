package detect

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"alignpress/pkg/geometry"
)

// ContourDetector segments the region, extracts external contours, filters
// them by area and aspect ratio, and takes the largest survivor as the
// logo. Its centroid gives position and its principal axis gives rotation.
type ContourDetector struct {
	// MinAreaPx and MaxAreaPx bound accepted contour areas in pixels.
	// MaxAreaPx <= 0 means unbounded.
	MinAreaPx float64
	MaxAreaPx float64
	// AspectMin and AspectMax bound the width/height ratio of a
	// contour's bounding box.
	AspectMin float64
	AspectMax float64
	// ThresholdMode is "otsu" (default) or "fixed".
	ThresholdMode  string
	ThresholdValue float64
	// Invert flips the binary mask for dark logos on light garments.
	Invert bool
	// MorphKernel is the open/close kernel size; 0 disables cleanup.
	MorphKernel int
}

// NewContourDetector builds a contour detector from opaque parameters.
// Unknown keys are ignored; missing keys fall back to defaults that work
// for a dark print on a light garment.
func NewContourDetector(params map[string]any) (*ContourDetector, error) {
	return &ContourDetector{
		MinAreaPx:      floatParam(params, "min_area", 500),
		MaxAreaPx:      floatParam(params, "max_area", 0),
		AspectMin:      floatParam(params, "aspect_min", 0.2),
		AspectMax:      floatParam(params, "aspect_max", 5.0),
		ThresholdMode:  stringParam(params, "threshold", "otsu"),
		ThresholdValue: floatParam(params, "threshold_value", 120),
		Invert:         boolParam(params, "invert", false),
		MorphKernel:    intParam(params, "morph_kernel", 3),
	}, nil
}

func (d *ContourDetector) Kind() string { return KindContour }

// Detect runs denoise -> contrast normalize -> threshold -> contour
// extraction -> filter -> largest contour wins.
func (d *ContourDetector) Detect(region gocv.Mat) Observation {
	if region.Empty() {
		return NotFound()
	}

	gray := toGray(region)
	defer gray.Close()

	// Light blur to suppress fabric texture noise.
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{5, 5}, 0, 0, gocv.BorderDefault)

	// Local contrast normalization evens out garment lighting.
	clahe := gocv.NewCLAHEWithParams(2.0, image.Point{8, 8})
	defer clahe.Close()
	normalized := gocv.NewMat()
	defer normalized.Close()
	clahe.Apply(blurred, &normalized)

	bw := gocv.NewMat()
	defer bw.Close()
	if d.ThresholdMode == "fixed" {
		gocv.Threshold(normalized, &bw, float32(d.ThresholdValue), 255, gocv.ThresholdBinaryInv)
	} else {
		gocv.Threshold(normalized, &bw, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	}
	if d.Invert {
		gocv.BitwiseNot(bw, &bw)
	}

	if d.MorphKernel > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{d.MorphKernel, d.MorphKernel})
		defer kernel.Close()
		gocv.MorphologyEx(bw, &bw, gocv.MorphOpen, kernel)
		gocv.MorphologyEx(bw, &bw, gocv.MorphClose, kernel)
	}

	contours := gocv.FindContours(bw, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var bestPoints []geometry.Point2D
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < d.MinAreaPx {
			continue
		}
		if d.MaxAreaPx > 0 && area > d.MaxAreaPx {
			continue
		}
		points := contourPoints(contour)
		bounds := geometry.BoundingBox(points)
		if bounds.Height == 0 {
			continue
		}
		aspect := bounds.Width / bounds.Height
		if aspect < d.AspectMin || aspect > d.AspectMax {
			continue
		}
		if area > bestArea {
			bestArea = area
			bestPoints = points
		}
	}
	if bestPoints == nil {
		return NotFound()
	}

	center := geometry.Centroid(bestPoints)
	theta, thetaOK := principalAxisAngle(bestPoints)

	roiArea := float64(region.Cols() * region.Rows())
	confidence := clamp01(bestArea / roiArea)

	return Observation{
		Found:      true,
		CenterPx:   center,
		ThetaRad:   theta,
		ThetaKnown: thetaOK,
		Confidence: confidence,
	}
}

// toGray returns a grayscale copy of the region regardless of its channel
// count. The caller owns the returned Mat.
func toGray(region gocv.Mat) gocv.Mat {
	if region.Channels() == 1 {
		return region.Clone()
	}
	gray := gocv.NewMat()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	return gray
}

func contourPoints(contour gocv.PointVector) []geometry.Point2D {
	points := make([]geometry.Point2D, contour.Size())
	for i := 0; i < contour.Size(); i++ {
		pt := contour.At(i)
		points[i] = geometry.Point2D{X: float64(pt.X), Y: float64(pt.Y)}
	}
	return points
}

// principalAxisAngle returns the orientation of the dominant axis of a
// point set via the eigendecomposition of its 2x2 covariance matrix. The
// axis is direction-ambiguous, so the angle is folded into (-pi/2, pi/2].
// Returns false for degenerate sets (too few points or near-isotropic
// spread) where orientation is meaningless.
func principalAxisAngle(points []geometry.Point2D) (float64, bool) {
	if len(points) < 3 {
		return 0, false
	}
	c := geometry.Centroid(points)
	var sxx, syy, sxy float64
	for _, p := range points {
		dx := p.X - c.X
		dy := p.Y - c.Y
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	n := float64(len(points))
	cov := mat.NewSymDense(2, []float64{sxx / n, sxy / n, sxy / n, syy / n})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return 0, false
	}
	values := eig.Values(nil)
	// Eigenvalues come back ascending; the principal axis is the second
	// eigenvector. Near-equal eigenvalues mean a round blob with no
	// usable orientation.
	if values[1] < 1e-9 || values[0]/values[1] > 0.95 {
		return 0, false
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	theta := math.Atan2(vectors.At(1, 1), vectors.At(0, 1))

	// Fold the 180 degree axis ambiguity into (-pi/2, pi/2].
	if theta > math.Pi/2 {
		theta -= math.Pi
	} else if theta <= -math.Pi/2 {
		theta += math.Pi
	}
	return theta, true
}
