// Package preset defines the reusable configuration fragments for a
// garment run (style and size variant) and composes them with a platen
// calibration into the concrete list of per-logo detection tasks the
// alignment pipeline executes.
package preset

import (
	"fmt"

	"alignpress/pkg/geometry"
)

// LogoSpec describes one logo within a style: where it belongs on the
// platen, how far off it may be, and how to find it.
type LogoSpec struct {
	// ID is unique within a style.
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// NominalPose is the target pose in millimeters relative to the
	// platen origin.
	NominalPose geometry.Pose2D `json:"nominal_pose" yaml:"nominal_pose"`
	// ToleranceMM bounds the Euclidean position error.
	ToleranceMM float64 `json:"tolerance_mm" yaml:"tolerance_mm"`
	// ToleranceRad bounds the absolute rotation error.
	ToleranceRad float64 `json:"tolerance_rad" yaml:"tolerance_rad"`
	// ROI is the search region in millimeters relative to the platen
	// origin.
	ROI geometry.Rect `json:"roi" yaml:"roi"`
	// DetectorKind selects the detection strategy ("contour",
	// "template" or "marker").
	DetectorKind string `json:"detector_kind" yaml:"detector_kind"`
	// DetectorParams is passed through to the detector untouched.
	DetectorParams map[string]any `json:"detector_params,omitempty" yaml:"detector_params,omitempty"`
	// Priority orders detection; lower runs first.
	Priority int `json:"priority" yaml:"priority"`
}

// Style is a named, ordered set of logo specifications for one garment
// design.
type Style struct {
	ID    string     `json:"id" yaml:"id"`
	Name  string     `json:"name,omitempty" yaml:"name,omitempty"`
	Logos []LogoSpec `json:"logos" yaml:"logos"`
}

// Validate checks id presence and uniqueness.
func (s *Style) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("style id is empty")
	}
	seen := make(map[string]bool, len(s.Logos))
	for i, logo := range s.Logos {
		if logo.ID == "" {
			return fmt.Errorf("style %q: logo %d has empty id", s.ID, i)
		}
		if seen[logo.ID] {
			return fmt.Errorf("style %q: duplicate logo id %q", s.ID, logo.ID)
		}
		seen[logo.ID] = true
	}
	return nil
}

// Logo returns the spec with the given id, if present.
func (s *Style) Logo(id string) (LogoSpec, bool) {
	for _, logo := range s.Logos {
		if logo.ID == id {
			return logo, true
		}
	}
	return LogoSpec{}, false
}

// SizeVariant adjusts a style for a specific garment size. A zero-value
// scale factor is treated as 1.0 so variants may omit it.
type SizeVariant struct {
	ID          string `json:"id" yaml:"id"`
	BaseStyleID string `json:"base_style_id" yaml:"base_style_id"`
	// ScaleFactor stretches logo positions (and ROIs) about the platen
	// origin. Rotation is never scaled.
	ScaleFactor float64 `json:"scale_factor,omitempty" yaml:"scale_factor,omitempty"`
	// OffsetsByID shifts individual logos after scaling. Unmapped ids
	// get a zero offset.
	OffsetsByID map[string]geometry.Pose2D `json:"offsets_by_id,omitempty" yaml:"offsets_by_id,omitempty"`
	// ToleranceScale, when present, multiplies logo tolerances.
	ToleranceScale *float64 `json:"tolerance_scale,omitempty" yaml:"tolerance_scale,omitempty"`
	// LinearToleranceOnly restricts ToleranceScale to the linear
	// tolerance, leaving the angular tolerance as authored.
	LinearToleranceOnly bool `json:"linear_tolerance_only,omitempty" yaml:"linear_tolerance_only,omitempty"`
}

// EffectiveScale returns the scale factor with the 1.0 default applied.
func (v *SizeVariant) EffectiveScale() float64 {
	if v == nil || v.ScaleFactor == 0 {
		return 1.0
	}
	return v.ScaleFactor
}

// Offset returns the offset for a logo id, zero if unmapped.
func (v *SizeVariant) Offset(id string) geometry.Pose2D {
	if v == nil {
		return geometry.Pose2D{}
	}
	return v.OffsetsByID[id]
}

// Identity returns a variant that reproduces the style unchanged.
func Identity(styleID string) *SizeVariant {
	return &SizeVariant{ID: "identity", BaseStyleID: styleID, ScaleFactor: 1.0}
}
