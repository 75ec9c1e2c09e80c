// Package calib holds the camera calibration model: a single scalar
// conversion between image pixels and millimeters on the platen, plus
// enough provenance to decide when the operator should recalibrate.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCalibrationInvalid indicates a calibration whose conversion factor is
// not positive. Such a calibration can never be used for conversion.
var ErrCalibrationInvalid = errors.New("calibration invalid")

// Method identifies the procedure that produced a calibration.
type Method string

const (
	MethodChessboard Method = "chessboard"
	MethodMarkerGrid Method = "marker-grid"
)

// Default freshness thresholds. A calibration older than the remind
// threshold should be verified; older than the expire threshold it must
// not be used for composition.
const (
	DefaultRemindAfter = 7 * 24 * time.Hour
	DefaultExpireAfter = 30 * 24 * time.Hour
)

// Calibration converts between pixel and physical lengths. It is created
// by an external calibration procedure and consumed read-only; all methods
// are pure.
type Calibration struct {
	// FactorMMPerPx is millimeters per pixel. Must be positive.
	FactorMMPerPx float64 `json:"factor_mm_per_px" yaml:"factor_mm_per_px"`
	// Method records which calibration procedure produced the factor.
	Method Method `json:"method" yaml:"method"`
	// CapturedAt is when the calibration image was taken.
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	// Pattern describes the calibration target (pattern size, square or
	// marker edge length). Opaque to the alignment core.
	Pattern json.RawMessage `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// New creates a calibration captured now with the given factor.
func New(factorMMPerPx float64, method Method) (*Calibration, error) {
	c := &Calibration{
		FactorMMPerPx: factorMMPerPx,
		Method:        method,
		CapturedAt:    time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the conversion factor.
func (c *Calibration) Validate() error {
	if c.FactorMMPerPx <= 0 {
		return fmt.Errorf("%w: factor_mm_per_px %v must be positive", ErrCalibrationInvalid, c.FactorMMPerPx)
	}
	return nil
}

// ToPixels converts a physical length in millimeters to pixels.
func (c *Calibration) ToPixels(lengthMM float64) float64 {
	return lengthMM / c.FactorMMPerPx
}

// ToPhysical converts a pixel length to millimeters.
func (c *Calibration) ToPhysical(lengthPx float64) float64 {
	return lengthPx * c.FactorMMPerPx
}

// Age returns how old the calibration is at the given instant.
func (c *Calibration) Age(now time.Time) time.Duration {
	return now.Sub(c.CapturedAt)
}

// IsStale reports whether the calibration is older than the reminder
// threshold. Staleness is advisory: composition still proceeds but the
// operator should be warned.
func (c *Calibration) IsStale(now time.Time, remindAfter time.Duration) bool {
	return c.Age(now) > remindAfter
}

// IsExpired reports whether the calibration is older than the expiry
// threshold. An expired calibration blocks composition.
func (c *Calibration) IsExpired(now time.Time, expireAfter time.Duration) bool {
	return c.Age(now) > expireAfter
}
