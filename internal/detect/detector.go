// Package detect provides the logo detection strategies. Each detector
// consumes a region of interest cut from the captured frame and reports a
// pixel-space pose estimate with a confidence score. Not finding a logo is
// a normal outcome, never an error: detectors report Found=false with zero
// confidence instead.
package detect

import (
	"fmt"
	"sort"

	"gocv.io/x/gocv"

	"alignpress/pkg/geometry"
)

// Detector kind tags. The set is closed over the three shipped strategies
// but the registry accepts additional registrations.
const (
	KindContour  = "contour"
	KindTemplate = "template"
	KindMarker   = "marker"
)

// Observation is a raw pixel-space pose estimate within the inspected
// region. CenterPx is relative to the region's top-left corner; callers
// translate into frame coordinates.
type Observation struct {
	Found bool
	// CenterPx is the estimated logo center in region pixels.
	CenterPx geometry.Point2D
	// ThetaRad is the estimated rotation, normalized to (-pi, pi].
	// Only meaningful when ThetaKnown is true; strategies that cannot
	// estimate rotation leave it zero and unset ThetaKnown.
	ThetaRad   float64
	ThetaKnown bool
	// Confidence is in [0, 1]; zero when not found.
	Confidence float64
}

// NotFound is the observation every detector returns when nothing in the
// region passes its filters.
func NotFound() Observation {
	return Observation{}
}

// Detector locates a logo inside a region of interest.
type Detector interface {
	// Kind returns the detector's tag.
	Kind() string
	// Detect inspects a BGR or grayscale region. The region Mat is
	// read-only to the detector and remains owned by the caller.
	Detect(region gocv.Mat) Observation
}

// Factory builds a detector from opaque per-logo parameters.
type Factory func(params map[string]any) (Detector, error)

// Registry maps detector kind tags to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the three built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindContour, func(params map[string]any) (Detector, error) {
		return NewContourDetector(params)
	})
	r.Register(KindTemplate, func(params map[string]any) (Detector, error) {
		return NewTemplateDetector(params)
	})
	r.Register(KindMarker, func(params map[string]any) (Detector, error) {
		return NewMarkerDetector(params)
	})
	return r
}

// Register adds or replaces a factory for a kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// New builds a detector of the given kind.
func (r *Registry) New(kind string, params map[string]any) (Detector, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown detector kind %q (known: %v)", kind, r.Kinds())
	}
	return f(params)
}

// Kinds returns the registered kind tags in lexical order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
