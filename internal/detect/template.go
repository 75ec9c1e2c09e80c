package detect

import (
	"image"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"alignpress/pkg/geometry"
)

// Signature summarizes the texture of a logo template: fraction of edge
// pixels plus intensity mean and spread. Cheap to compute and robust to
// the small appearance changes a printed logo shows between garments.
type Signature struct {
	EdgeDensity   float64 `json:"edge_density"`
	MeanIntensity float64 `json:"mean_intensity"`
	StdIntensity  float64 `json:"std_intensity"`
}

// TemplateDetector slides a window over the region and scores each window's
// texture signature against the expected one. The best-scoring window wins.
// Rotation is not estimated by this strategy.
type TemplateDetector struct {
	// WidthPx and HeightPx give the template window size.
	WidthPx  int
	HeightPx int
	// Expected is the signature the window is matched against.
	Expected Signature
	// StridePx is the window step; defaults to a quarter of the
	// smaller window dimension.
	StridePx int
	// MinScore is the acceptance floor; windows below it count as not
	// found.
	MinScore float64
	// Canny hysteresis thresholds for the edge map.
	CannyLow  float64
	CannyHigh float64
}

// NewTemplateDetector builds a template detector from opaque parameters.
// Window size and the expected signature are required.
func NewTemplateDetector(params map[string]any) (*TemplateDetector, error) {
	d := &TemplateDetector{
		WidthPx:  intParam(params, "width_px", 0),
		HeightPx: intParam(params, "height_px", 0),
		Expected: Signature{
			EdgeDensity:   floatParam(params, "edge_density", 0.15),
			MeanIntensity: floatParam(params, "mean_intensity", 128),
			StdIntensity:  floatParam(params, "std_intensity", 40),
		},
		StridePx:  intParam(params, "stride_px", 0),
		MinScore:  floatParam(params, "min_score", 0.5),
		CannyLow:  floatParam(params, "canny_low", 50),
		CannyHigh: floatParam(params, "canny_high", 150),
	}
	if d.StridePx <= 0 {
		d.StridePx = max(min(d.WidthPx, d.HeightPx)/4, 1)
	}
	return d, nil
}

func (d *TemplateDetector) Kind() string { return KindTemplate }

// Detect scans the region for the best signature match.
func (d *TemplateDetector) Detect(region gocv.Mat) Observation {
	if region.Empty() || d.WidthPx <= 0 || d.HeightPx <= 0 {
		return NotFound()
	}
	cols, rows := region.Cols(), region.Rows()
	if cols < d.WidthPx || rows < d.HeightPx {
		return NotFound()
	}

	gray := toGray(region)
	defer gray.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(d.CannyLow), float32(d.CannyHigh))

	bestScore := -1.0
	var bestCenter geometry.Point2D

	for y := 0; y+d.HeightPx <= rows; y += d.StridePx {
		for x := 0; x+d.WidthPx <= cols; x += d.StridePx {
			window := image.Rect(x, y, x+d.WidthPx, y+d.HeightPx)
			sig := windowSignature(gray, edges, window)
			score := scoreSignature(sig, d.Expected)
			if score > bestScore {
				bestScore = score
				bestCenter = geometry.Point2D{
					X: float64(x) + float64(d.WidthPx)/2,
					Y: float64(y) + float64(d.HeightPx)/2,
				}
			}
		}
	}

	if bestScore < d.MinScore {
		return NotFound()
	}
	return Observation{
		Found:      true,
		CenterPx:   bestCenter,
		ThetaKnown: false,
		Confidence: clamp01(bestScore),
	}
}

// windowSignature measures the texture statistics of one window.
func windowSignature(gray, edges gocv.Mat, window image.Rectangle) Signature {
	grayWin := gray.Region(window)
	defer grayWin.Close()
	edgeWin := edges.Region(window)
	defer edgeWin.Close()

	area := float64(window.Dx() * window.Dy())
	density := float64(gocv.CountNonZero(edgeWin)) / area

	values := make([]float64, 0, window.Dx()*window.Dy())
	for y := 0; y < grayWin.Rows(); y++ {
		for x := 0; x < grayWin.Cols(); x++ {
			values = append(values, float64(grayWin.GetUCharAt(y, x)))
		}
	}
	mean, std := stat.MeanStdDev(values, nil)

	return Signature{EdgeDensity: density, MeanIntensity: mean, StdIntensity: std}
}

// scoreSignature maps the distance between an observed and expected
// signature into [0, 1], 1 being a perfect match. Each component is
// normalized to its natural range before weighting.
func scoreSignature(got, want Signature) float64 {
	dEdge := abs(got.EdgeDensity - want.EdgeDensity)
	dMean := abs(got.MeanIntensity-want.MeanIntensity) / 255.0
	dStd := abs(got.StdIntensity-want.StdIntensity) / 128.0

	distance := 0.5*dEdge + 0.3*dMean + 0.2*dStd
	return clamp01(1 - distance*4)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
