// Package platen describes the heat-press work surface. A platen profile
// anchors the physical coordinate system: style positions are millimeters
// relative to its top-left corner, and its calibration converts those
// millimeters to camera pixels.
package platen

import (
	"fmt"
	"time"

	"alignpress/internal/calib"
	"alignpress/pkg/geometry"
)

// CalibrationState summarizes calibration freshness for the operator UI.
type CalibrationState string

const (
	StateCalibrated  CalibrationState = "calibrated"
	StateVerify      CalibrationState = "verify"
	StateRecalibrate CalibrationState = "recalibrate"
)

// Profile is a named platen with its physical size and calibration.
type Profile struct {
	Name        string            `json:"name" yaml:"name"`
	SizeMM      geometry.Size     `json:"size_mm" yaml:"size_mm"`
	Calibration calib.Calibration `json:"calibration" yaml:"calibration"`
	Notes       string            `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Validate checks the platen dimensions and embedded calibration.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("platen name is empty")
	}
	if p.SizeMM.Width <= 0 || p.SizeMM.Height <= 0 {
		return fmt.Errorf("platen %q: size %.1fx%.1f mm must be positive", p.Name, p.SizeMM.Width, p.SizeMM.Height)
	}
	if err := p.Calibration.Validate(); err != nil {
		return fmt.Errorf("platen %q: %w", p.Name, err)
	}
	return nil
}

// Bounds returns the platen surface as a rectangle at the origin.
func (p *Profile) Bounds() geometry.Rect {
	return geometry.NewRect(0, 0, p.SizeMM.Width, p.SizeMM.Height)
}

// CalibrationState classifies the embedded calibration's freshness.
// A zero CapturedAt means the calibration has never been verified and
// always demands recalibration.
func (p *Profile) CalibrationState(now time.Time, remindAfter, expireAfter time.Duration) CalibrationState {
	if p.Calibration.CapturedAt.IsZero() {
		return StateRecalibrate
	}
	if p.Calibration.IsExpired(now, expireAfter) {
		return StateRecalibrate
	}
	if p.Calibration.IsStale(now, remindAfter) {
		return StateVerify
	}
	return StateCalibrated
}
