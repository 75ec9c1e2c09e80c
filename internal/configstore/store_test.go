package configstore

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignpress/internal/calib"
	"alignpress/internal/platen"
	"alignpress/internal/preset"
	"alignpress/pkg/geometry"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const styleJSON = `{
  "id": "camisola-front",
  "name": "Camisola front",
  "logos": [
    {
      "id": "chest",
      "nominal_pose": {"x_mm": 100, "y_mm": 80, "theta_deg": 90},
      "tolerance_mm": 5,
      "tolerance_deg": 5,
      "roi_mm": {"x": 60, "y": 40, "width": 80, "height": 80},
      "detector_kind": "contour",
      "detector_params": {"min_area": 400},
      "priority": 1
    }
  ]
}`

const styleYAML = `id: camisola-front
logos:
  - id: chest
    nominal_pose:
      x_mm: 100
      y_mm: 80
      theta_deg: 90
    tolerance_mm: 5
    tolerance_deg: 5
    roi_mm: {x: 60, y: 40, width: 80, height: 80}
    detector_kind: contour
    priority: 1
`

func TestLoadStyleJSON(t *testing.T) {
	path := writeTestFile(t, "style.json", styleJSON)

	style, err := LoadStyle(path)
	require.NoError(t, err)

	assert.Equal(t, "camisola-front", style.ID)
	require.Len(t, style.Logos, 1)
	logo := style.Logos[0]
	assert.Equal(t, "chest", logo.ID)
	// Degrees on disk become radians in memory.
	assert.InDelta(t, math.Pi/2, logo.NominalPose.Theta, 1e-9)
	assert.InDelta(t, geometry.DegToRad(5), logo.ToleranceRad, 1e-9)
	assert.Equal(t, 5.0, logo.ToleranceMM)
	assert.Equal(t, geometry.NewRect(60, 40, 80, 80), logo.ROI)
	assert.Equal(t, 400.0, logo.DetectorParams["min_area"])
}

func TestLoadStyleYAML(t *testing.T) {
	path := writeTestFile(t, "style.yaml", styleYAML)

	style, err := LoadStyle(path)
	require.NoError(t, err)
	require.Len(t, style.Logos, 1)
	assert.InDelta(t, math.Pi/2, style.Logos[0].NominalPose.Theta, 1e-9)
}

func TestStyleRoundTrip(t *testing.T) {
	for _, name := range []string{"style.json", "style.yaml"} {
		t.Run(name, func(t *testing.T) {
			original, err := LoadStyle(writeTestFile(t, "in.json", styleJSON))
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveStyle(original, path))

			reloaded, err := LoadStyle(path)
			require.NoError(t, err)
			assert.Equal(t, original.ID, reloaded.ID)
			assert.InDelta(t, original.Logos[0].NominalPose.Theta, reloaded.Logos[0].NominalPose.Theta, 1e-9)
			assert.InDelta(t, original.Logos[0].ToleranceRad, reloaded.Logos[0].ToleranceRad, 1e-9)
		})
	}
}

func TestLoadStyleRejectsDuplicateIDs(t *testing.T) {
	path := writeTestFile(t, "dup.json", `{
	  "id": "s",
	  "logos": [
	    {"id": "a", "nominal_pose": {"x_mm": 0, "y_mm": 0}, "roi_mm": {"x":0,"y":0,"width":1,"height":1}, "detector_kind": "contour"},
	    {"id": "a", "nominal_pose": {"x_mm": 0, "y_mm": 0}, "roi_mm": {"x":0,"y":0,"width":1,"height":1}, "detector_kind": "contour"}
	  ]
	}`)

	_, err := LoadStyle(path)
	assert.Error(t, err)
}

func TestLoadVariantDefaults(t *testing.T) {
	path := writeTestFile(t, "variant.json", `{"id": "size-m", "base_style_id": "camisola-front"}`)

	variant, err := LoadVariant(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, variant.ScaleFactor)
	assert.NotNil(t, variant.OffsetsByID)
	assert.Empty(t, variant.OffsetsByID)
	assert.Nil(t, variant.ToleranceScale)
}

func TestLoadVariantRejectsNonPositiveScale(t *testing.T) {
	// An explicit zero is a broken record, not a request for the default.
	zero := writeTestFile(t, "variant.json", `{"id": "size-m", "base_style_id": "camisola-front", "scale_factor": 0}`)
	_, err := LoadVariant(zero)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scale_factor")

	negative := writeTestFile(t, "variant.yaml", "id: size-m\nbase_style_id: camisola-front\nscale_factor: -0.5\n")
	_, err = LoadVariant(negative)
	assert.Error(t, err)
}

func TestLoadVariantOffsets(t *testing.T) {
	path := writeTestFile(t, "variant.yaml", `id: size-l
base_style_id: camisola-front
scale_factor: 1.1
tolerance_scale: 1.5
linear_tolerance_only: true
offsets_by_id:
  chest:
    x_mm: 2
    y_mm: -1
    theta_deg: 180
`)

	variant, err := LoadVariant(path)
	require.NoError(t, err)
	assert.Equal(t, 1.1, variant.ScaleFactor)
	require.NotNil(t, variant.ToleranceScale)
	assert.Equal(t, 1.5, *variant.ToleranceScale)
	assert.True(t, variant.LinearToleranceOnly)

	offset := variant.OffsetsByID["chest"]
	assert.Equal(t, 2.0, offset.X)
	assert.Equal(t, -1.0, offset.Y)
	assert.InDelta(t, math.Pi, offset.Theta, 1e-9)
}

func TestVariantRoundTrip(t *testing.T) {
	variant := &preset.SizeVariant{
		ID:          "size-l",
		BaseStyleID: "camisola-front",
		ScaleFactor: 1.1,
		OffsetsByID: map[string]geometry.Pose2D{"chest": geometry.NewPose2D(2, -1, 0)},
	}

	path := filepath.Join(t.TempDir(), "variant.yaml")
	require.NoError(t, SaveVariant(variant, path))

	reloaded, err := LoadVariant(path)
	require.NoError(t, err)
	assert.Equal(t, variant.ScaleFactor, reloaded.ScaleFactor)
	assert.Equal(t, variant.OffsetsByID["chest"].X, reloaded.OffsetsByID["chest"].X)
}

func TestPlatenRoundTrip(t *testing.T) {
	profile := &platen.Profile{
		Name:   "platen-40x50",
		SizeMM: geometry.NewSize(400, 500),
		Calibration: calib.Calibration{
			FactorMMPerPx: 0.2645,
			Method:        calib.MethodChessboard,
			CapturedAt:    time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	path := filepath.Join(t.TempDir(), "platen.json")
	require.NoError(t, SavePlaten(profile, path))

	reloaded, err := LoadPlaten(path)
	require.NoError(t, err)
	assert.Equal(t, profile.Name, reloaded.Name)
	assert.Equal(t, profile.Calibration.FactorMMPerPx, reloaded.Calibration.FactorMMPerPx)
	assert.True(t, profile.Calibration.CapturedAt.Equal(reloaded.Calibration.CapturedAt))
}

func TestLoadCalibrationRejectsInvalidFactor(t *testing.T) {
	path := writeTestFile(t, "cal.json", `{"factor_mm_per_px": 0, "method": "chessboard", "captured_at": "2025-07-01T09:00:00Z"}`)

	_, err := LoadCalibration(path)
	assert.ErrorIs(t, err, calib.ErrCalibrationInvalid)
}

func TestListRecords(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.json", "notes.txt", "c.yml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	paths, err := ListRecords(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "a.json", filepath.Base(paths[0]))
	assert.Equal(t, "b.yaml", filepath.Base(paths[1]))
	assert.Equal(t, "c.yml", filepath.Base(paths[2]))

	missing, err := ListRecords(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
