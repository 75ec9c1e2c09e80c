// Package configstore exchanges platen, style, size-variant and
// calibration records with the configuration editors. Files are JSON or
// YAML by extension; lengths are millimeters and angles are degrees on
// disk, converted to radians at load.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"alignpress/internal/calib"
	"alignpress/internal/platen"
	"alignpress/internal/preset"
	"alignpress/pkg/geometry"
)

// poseFile is the on-disk pose representation: millimeters and degrees.
type poseFile struct {
	XMM      float64 `json:"x_mm" yaml:"x_mm"`
	YMM      float64 `json:"y_mm" yaml:"y_mm"`
	ThetaDeg float64 `json:"theta_deg,omitempty" yaml:"theta_deg,omitempty"`
}

func (p poseFile) toPose() geometry.Pose2D {
	return geometry.NewPose2D(p.XMM, p.YMM, geometry.DegToRad(p.ThetaDeg))
}

func poseToFile(p geometry.Pose2D) poseFile {
	return poseFile{XMM: p.X, YMM: p.Y, ThetaDeg: geometry.RadToDeg(p.Theta)}
}

type logoFile struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name,omitempty" yaml:"name,omitempty"`
	NominalPose    poseFile       `json:"nominal_pose" yaml:"nominal_pose"`
	ToleranceMM    float64        `json:"tolerance_mm" yaml:"tolerance_mm"`
	ToleranceDeg   float64        `json:"tolerance_deg" yaml:"tolerance_deg"`
	ROI            geometry.Rect  `json:"roi_mm" yaml:"roi_mm"`
	DetectorKind   string         `json:"detector_kind" yaml:"detector_kind"`
	DetectorParams map[string]any `json:"detector_params,omitempty" yaml:"detector_params,omitempty"`
	Priority       int            `json:"priority,omitempty" yaml:"priority,omitempty"`
}

type styleFile struct {
	ID    string     `json:"id" yaml:"id"`
	Name  string     `json:"name,omitempty" yaml:"name,omitempty"`
	Logos []logoFile `json:"logos" yaml:"logos"`
}

type variantFile struct {
	ID                  string              `json:"id" yaml:"id"`
	BaseStyleID         string              `json:"base_style_id" yaml:"base_style_id"`
	ScaleFactor         *float64            `json:"scale_factor,omitempty" yaml:"scale_factor,omitempty"`
	OffsetsByID         map[string]poseFile `json:"offsets_by_id,omitempty" yaml:"offsets_by_id,omitempty"`
	ToleranceScale      *float64            `json:"tolerance_scale,omitempty" yaml:"tolerance_scale,omitempty"`
	LinearToleranceOnly bool                `json:"linear_tolerance_only,omitempty" yaml:"linear_tolerance_only,omitempty"`
}

// LoadStyle reads a style record and converts angles to radians.
func LoadStyle(path string) (*preset.Style, error) {
	var file styleFile
	if err := readRecord(path, &file); err != nil {
		return nil, err
	}

	style := &preset.Style{ID: file.ID, Name: file.Name, Logos: make([]preset.LogoSpec, len(file.Logos))}
	for i, logo := range file.Logos {
		style.Logos[i] = preset.LogoSpec{
			ID:             logo.ID,
			Name:           logo.Name,
			NominalPose:    logo.NominalPose.toPose(),
			ToleranceMM:    logo.ToleranceMM,
			ToleranceRad:   geometry.DegToRad(logo.ToleranceDeg),
			ROI:            logo.ROI,
			DetectorKind:   logo.DetectorKind,
			DetectorParams: logo.DetectorParams,
			Priority:       logo.Priority,
		}
	}
	if err := style.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return style, nil
}

// SaveStyle writes a style record with angles converted back to degrees.
func SaveStyle(style *preset.Style, path string) error {
	file := styleFile{ID: style.ID, Name: style.Name, Logos: make([]logoFile, len(style.Logos))}
	for i, logo := range style.Logos {
		file.Logos[i] = logoFile{
			ID:             logo.ID,
			Name:           logo.Name,
			NominalPose:    poseToFile(logo.NominalPose),
			ToleranceMM:    logo.ToleranceMM,
			ToleranceDeg:   geometry.RadToDeg(logo.ToleranceRad),
			ROI:            logo.ROI,
			DetectorKind:   logo.DetectorKind,
			DetectorParams: logo.DetectorParams,
			Priority:       logo.Priority,
		}
	}
	return writeRecord(path, &file)
}

// LoadVariant reads a size-variant record. A missing scale factor
// defaults to 1.0 and missing offsets to an empty map. A scale factor
// written out as zero or negative is a malformed record, not a default.
func LoadVariant(path string) (*preset.SizeVariant, error) {
	var file variantFile
	if err := readRecord(path, &file); err != nil {
		return nil, err
	}

	variant := &preset.SizeVariant{
		ID:                  file.ID,
		BaseStyleID:         file.BaseStyleID,
		ScaleFactor:         1.0,
		OffsetsByID:         map[string]geometry.Pose2D{},
		ToleranceScale:      file.ToleranceScale,
		LinearToleranceOnly: file.LinearToleranceOnly,
	}
	if file.ScaleFactor != nil {
		if *file.ScaleFactor <= 0 {
			return nil, fmt.Errorf("configstore: variant %q: scale_factor must be positive, got %v",
				file.ID, *file.ScaleFactor)
		}
		variant.ScaleFactor = *file.ScaleFactor
	}
	for id, offset := range file.OffsetsByID {
		variant.OffsetsByID[id] = offset.toPose()
	}
	return variant, nil
}

// SaveVariant writes a size-variant record.
func SaveVariant(variant *preset.SizeVariant, path string) error {
	scale := variant.EffectiveScale()
	file := variantFile{
		ID:                  variant.ID,
		BaseStyleID:         variant.BaseStyleID,
		ScaleFactor:         &scale,
		ToleranceScale:      variant.ToleranceScale,
		LinearToleranceOnly: variant.LinearToleranceOnly,
	}
	if len(variant.OffsetsByID) > 0 {
		file.OffsetsByID = make(map[string]poseFile, len(variant.OffsetsByID))
		for id, offset := range variant.OffsetsByID {
			file.OffsetsByID[id] = poseToFile(offset)
		}
	}
	return writeRecord(path, &file)
}

// LoadPlaten reads a platen profile including its embedded calibration.
func LoadPlaten(path string) (*platen.Profile, error) {
	var profile platen.Profile
	if err := readRecord(path, &profile); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &profile, nil
}

// SavePlaten writes a platen profile.
func SavePlaten(profile *platen.Profile, path string) error {
	return writeRecord(path, profile)
}

// LoadCalibration reads a standalone calibration record.
func LoadCalibration(path string) (*calib.Calibration, error) {
	var cal calib.Calibration
	if err := readRecord(path, &cal); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cal, nil
}

// SaveCalibration writes a standalone calibration record.
func SaveCalibration(cal *calib.Calibration, path string) error {
	return writeRecord(path, cal)
}

// ListRecords returns the asset files in a directory, sorted by name.
// Missing directories list as empty, matching an unconfigured install.
func ListRecords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isRecordFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func writeRecord(path string, v any) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(v)
	default:
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
