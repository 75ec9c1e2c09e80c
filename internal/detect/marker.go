package detect

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"alignpress/pkg/geometry"
)

// markerConfidence is reported for every decoded marker. Marker decoding
// is effectively binary: a decoded id is almost never a false positive,
// and absence is reported as not found.
const markerConfidence = 0.99

var arucoDictionaries = map[string]contrib.ArucoDictionaryCode{
	"4x4_50":  contrib.ArucoDict4x4_50,
	"4x4_100": contrib.ArucoDict4x4_100,
	"5x5_50":  contrib.ArucoDict5x5_50,
	"5x5_100": contrib.ArucoDict5x5_100,
	"6x6_50":  contrib.ArucoDict6x6_50,
	"6x6_100": contrib.ArucoDict6x6_100,
}

// MarkerDetector locates a printed fiducial marker. Center and orientation
// come straight from the decoded corner geometry.
type MarkerDetector struct {
	// Dictionary names the marker family, e.g. "5x5_50".
	Dictionary string
	// ExpectedID restricts detection to one marker id; -1 accepts any.
	ExpectedID int

	code contrib.ArucoDictionaryCode
}

// NewMarkerDetector builds a marker detector from opaque parameters.
// An unrecognized dictionary name is a configuration fault and errors.
func NewMarkerDetector(params map[string]any) (*MarkerDetector, error) {
	name := stringParam(params, "dictionary", "5x5_50")
	code, ok := arucoDictionaries[name]
	if !ok {
		return nil, fmt.Errorf("detect: unknown marker dictionary %q", name)
	}
	return &MarkerDetector{
		Dictionary: name,
		ExpectedID: intParam(params, "expected_id", -1),
		code:       code,
	}, nil
}

func (d *MarkerDetector) Kind() string { return KindMarker }

// Detect decodes fiducial markers in the region and returns the pose of
// the expected one (or the first decoded marker when no id is pinned).
func (d *MarkerDetector) Detect(region gocv.Mat) Observation {
	if region.Empty() {
		return NotFound()
	}

	gray := toGray(region)
	defer gray.Close()

	params := contrib.NewArucoDetectorParameters()
	corners, ids, _ := contrib.DetectMarkersWithDictID(gray, d.code, params)
	for i, id := range ids {
		if d.ExpectedID >= 0 && id != d.ExpectedID {
			continue
		}
		if len(corners[i]) < 4 {
			continue
		}
		return markerObservation(corners[i])
	}
	return NotFound()
}

// markerObservation derives center and orientation from the four decoded
// corners. Corners arrive in clockwise order starting top-left, so the
// top edge vector gives the marker rotation.
func markerObservation(corners []gocv.Point2f) Observation {
	var cx, cy float64
	for _, c := range corners[:4] {
		cx += float64(c.X)
		cy += float64(c.Y)
	}
	cx /= 4
	cy /= 4

	dx := float64(corners[1].X - corners[0].X)
	dy := float64(corners[1].Y - corners[0].Y)
	theta := geometry.NormalizeAngle(math.Atan2(dy, dx))

	return Observation{
		Found:      true,
		CenterPx:   geometry.Point2D{X: cx, Y: cy},
		ThetaRad:   theta,
		ThetaKnown: true,
		Confidence: markerConfidence,
	}
}
