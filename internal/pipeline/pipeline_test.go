package pipeline

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"alignpress/internal/calib"
	"alignpress/internal/detect"
	"alignpress/internal/preset"
	"alignpress/pkg/geometry"
)

// stubDetector reports a fixed observation configured through the task's
// detector params, letting pipeline behavior be tested without OpenCV
// detection work.
type stubDetector struct {
	obs detect.Observation
}

func (s *stubDetector) Kind() string { return "stub" }

func (s *stubDetector) Detect(_ gocv.Mat) detect.Observation { return s.obs }

func stubRegistry() *detect.Registry {
	r := detect.NewRegistry()
	r.Register("stub", func(params map[string]any) (detect.Detector, error) {
		obs := detect.Observation{}
		if found, _ := params["found"].(bool); found {
			obs = detect.Observation{
				Found: true,
				CenterPx: geometry.Point2D{
					X: params["cx"].(float64),
					Y: params["cy"].(float64),
				},
				Confidence: params["confidence"].(float64),
			}
			if theta, ok := params["theta"].(float64); ok {
				obs.ThetaRad = theta
				obs.ThetaKnown = true
			}
		}
		return &stubDetector{obs: obs}, nil
	})
	return r
}

func testPipeline(workers int) *Pipeline {
	p := New()
	p.Registry = stubRegistry()
	p.Workers = workers
	p.Logger = slog.Default()
	return p
}

func testCalibration(factor float64) *calib.Calibration {
	return &calib.Calibration{
		FactorMMPerPx: factor,
		Method:        calib.MethodChessboard,
		CapturedAt:    time.Now().UTC(),
	}
}

func stubTask(id string, target geometry.Pose2D, tolMM, tolRad float64, params map[string]any) preset.ResolvedLogoTask {
	return preset.ResolvedLogoTask{
		ID:             id,
		AbsolutePose:   target,
		ROIPixels:      geometry.RectInt{X: 0, Y: 0, Width: 640, Height: 480},
		ToleranceMM:    tolMM,
		ToleranceRad:   tolRad,
		DetectorKind:   "stub",
		DetectorParams: params,
	}
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

func TestRunOutOfTolerance(t *testing.T) {
	// Detected pixel pose converts via 0.2645 mm/px to a 6 mm linear
	// error against a 5 mm tolerance.
	const factor = 0.2645
	target := geometry.NewPose2D(100, 80, 0)
	task := stubTask("chest", target, 5, geometry.DegToRad(5), map[string]any{
		"found":      true,
		"cx":         106.0 / factor,
		"cy":         80.0 / factor,
		"theta":      0.0,
		"confidence": 0.9,
	})

	result, err := testPipeline(1).Run([]preset.ResolvedLogoTask{task}, testFrame(t), testCalibration(factor))
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	r := result.Results[0]
	assert.Equal(t, StatusOutOfTolerance, r.Status)
	assert.True(t, r.Found)
	require.NotNil(t, r.Error)
	assert.InDelta(t, 6.0, r.Error.LinearError(), 1e-9)
	assert.False(t, result.OverallSuccess)
}

func TestRunWithinTolerance(t *testing.T) {
	const factor = 0.25
	target := geometry.NewPose2D(50, 40, 0)
	task := stubTask("chest", target, 5, geometry.DegToRad(5), map[string]any{
		"found":      true,
		"cx":         52.0 / factor, // 2 mm off in x
		"cy":         40.0 / factor,
		"theta":      0.0,
		"confidence": 0.8,
	})

	result, err := testPipeline(1).Run([]preset.ResolvedLogoTask{task}, testFrame(t), testCalibration(factor))
	require.NoError(t, err)

	r := result.Results[0]
	assert.Equal(t, StatusOK, r.Status)
	assert.True(t, result.OverallSuccess)
	require.NotNil(t, r.PhysicalPose)
	assert.InDelta(t, 52, r.PhysicalPose.X, 1e-9)
	assert.InDelta(t, 40, r.PhysicalPose.Y, 1e-9)
	assert.True(t, r.RotationEstimated)
}

func TestRunNotFound(t *testing.T) {
	task := stubTask("sleeve", geometry.NewPose2D(10, 10, 0), 5, 0.1, map[string]any{"found": false})

	result, err := testPipeline(1).Run([]preset.ResolvedLogoTask{task}, testFrame(t), testCalibration(0.25))
	require.NoError(t, err)

	r := result.Results[0]
	assert.Equal(t, StatusNotFound, r.Status)
	assert.False(t, r.Found)
	assert.Zero(t, r.Confidence)
	assert.Nil(t, r.RawPose)
	assert.Nil(t, r.PhysicalPose)
	assert.Nil(t, r.Error)
	assert.False(t, result.OverallSuccess)
	assert.Zero(t, result.MeanConfidence)
}

func TestRunRotationNotEstimated(t *testing.T) {
	const factor = 0.25
	// Target pose carries a rotation the stub cannot observe (no theta
	// param). The angular tolerance must pass vacuously but visibly.
	target := geometry.NewPose2D(50, 40, geometry.DegToRad(30))
	task := stubTask("band", target, 5, geometry.DegToRad(1), map[string]any{
		"found":      true,
		"cx":         50.0 / factor,
		"cy":         40.0 / factor,
		"confidence": 0.7,
	})

	result, err := testPipeline(1).Run([]preset.ResolvedLogoTask{task}, testFrame(t), testCalibration(factor))
	require.NoError(t, err)

	r := result.Results[0]
	assert.Equal(t, StatusOK, r.Status)
	assert.False(t, r.RotationEstimated)
	require.NotNil(t, r.Error)
	assert.Zero(t, r.Error.Theta)
}

func TestRunEvaluatesAllTasksAndKeepsOrder(t *testing.T) {
	const factor = 0.25
	found := map[string]any{"found": true, "cx": 10.0, "cy": 10.0, "theta": 0.0, "confidence": 0.8}
	foundLow := map[string]any{"found": true, "cx": 10.0, "cy": 10.0, "theta": 0.0, "confidence": 0.6}
	missing := map[string]any{"found": false}

	// First task fails; later tasks must still be evaluated.
	tasks := []preset.ResolvedLogoTask{
		stubTask("a", geometry.NewPose2D(500, 500, 0), 1, 0.1, missing),
		stubTask("b", geometry.NewPose2D(2.5, 2.5, 0), 5, 0.1, found),
		stubTask("c", geometry.NewPose2D(2.5, 2.5, 0), 5, 0.1, foundLow),
	}

	for _, workers := range []int{1, 4} {
		result, err := testPipeline(workers).Run(tasks, testFrame(t), testCalibration(factor))
		require.NoError(t, err)

		require.Len(t, result.Results, 3)
		assert.Equal(t, "a", result.Results[0].TaskID)
		assert.Equal(t, "b", result.Results[1].TaskID)
		assert.Equal(t, "c", result.Results[2].TaskID)
		assert.False(t, result.OverallSuccess)
		// Mean over the two found detections only.
		assert.InDelta(t, 0.7, result.MeanConfidence, 1e-9)
	}
}

func TestRunRegionOutsideFrame(t *testing.T) {
	task := stubTask("offscreen", geometry.NewPose2D(10, 10, 0), 5, 0.1,
		map[string]any{"found": true, "cx": 1.0, "cy": 1.0, "theta": 0.0, "confidence": 1.0})
	task.ROIPixels = geometry.RectInt{X: 2000, Y: 2000, Width: 100, Height: 100}

	result, err := testPipeline(1).Run([]preset.ResolvedLogoTask{task}, testFrame(t), testCalibration(0.25))
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Results[0].Status)
}

func TestRunInputValidation(t *testing.T) {
	p := testPipeline(1)
	frame := testFrame(t)
	task := stubTask("x", geometry.Pose2D{}, 1, 1, map[string]any{"found": false})

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := p.Run([]preset.ResolvedLogoTask{task}, empty, testCalibration(0.25))
	assert.Error(t, err)

	_, err = p.Run([]preset.ResolvedLogoTask{task}, frame, &calib.Calibration{FactorMMPerPx: -1})
	assert.ErrorIs(t, err, calib.ErrCalibrationInvalid)

	bad := task
	bad.DetectorKind = "nonexistent"
	_, err = p.Run([]preset.ResolvedLogoTask{bad}, frame, testCalibration(0.25))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
}

func TestRunNoTasks(t *testing.T) {
	result, err := testPipeline(1).Run(nil, testFrame(t), testCalibration(0.25))
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.True(t, result.OverallSuccess)
	assert.Zero(t, result.MeanConfidence)
}
