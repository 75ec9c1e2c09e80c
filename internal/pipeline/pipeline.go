// Package pipeline runs the multi-logo alignment check for one captured
// frame: it cuts each task's region of interest out of the frame, invokes
// the configured detector, converts the raw pixel pose into millimeters
// and judges it against the task's tolerances.
package pipeline

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"alignpress/internal/calib"
	"alignpress/internal/detect"
	"alignpress/internal/preset"
	"alignpress/pkg/geometry"
)

// Status classifies one logo's alignment check.
type Status string

const (
	StatusOK             Status = "ok"
	StatusOutOfTolerance Status = "out_of_tolerance"
	StatusNotFound       Status = "not_found"
)

// DetectionResult is the outcome for one resolved logo task. RawPose,
// PhysicalPose and Error are only present when the logo was found.
type DetectionResult struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name,omitempty"`
	Found  bool   `json:"found"`
	// RawPose is the detected pose in frame pixels.
	RawPose *geometry.Pose2D `json:"raw_pose,omitempty"`
	// PhysicalPose is the detected pose in millimeters on the platen.
	PhysicalPose *geometry.Pose2D `json:"physical_pose,omitempty"`
	// Error is PhysicalPose minus the task's target pose.
	Error      *geometry.Pose2D `json:"error,omitempty"`
	Confidence float64          `json:"confidence"`
	// RotationEstimated is false when the detector cannot measure
	// rotation; the angular tolerance is then vacuously satisfied and
	// Error.Theta is zero by construction, not by measurement.
	RotationEstimated bool   `json:"rotation_estimated"`
	Status            Status `json:"status"`
}

// MultiLogoResult aggregates one frame's detection results in task
// (priority) order.
type MultiLogoResult struct {
	Results        []DetectionResult `json:"results"`
	OverallSuccess bool              `json:"overall_success"`
	// MeanConfidence averages confidence over found detections only;
	// zero when nothing was found.
	MeanConfidence float64 `json:"mean_confidence"`
}

// Result returns the detection result for a task id, if present.
func (m *MultiLogoResult) Result(taskID string) (DetectionResult, bool) {
	for _, r := range m.Results {
		if r.TaskID == taskID {
			return r, true
		}
	}
	return DetectionResult{}, false
}

// Pipeline evaluates resolved logo tasks against captured frames. A
// Pipeline is safe for concurrent Run calls: it holds no per-frame state.
type Pipeline struct {
	// Registry resolves detector kinds. Defaults to the built-ins.
	Registry *detect.Registry
	// Workers > 1 evaluates tasks concurrently. Reported order is
	// unaffected: results are collected per task index.
	Workers int
	// Logger receives per-task debug records. Defaults to slog.Default.
	Logger *slog.Logger
}

// New returns a sequential pipeline with the built-in detector registry.
func New() *Pipeline {
	return &Pipeline{Registry: detect.NewRegistry(), Workers: 1, Logger: slog.Default()}
}

// Run evaluates every task against the frame and aggregates the outcome.
// All tasks are always evaluated, even after failures, because the report
// must show every logo's state. Tasks are expected in detection order as
// produced by preset.Compose and results keep that order.
func (p *Pipeline) Run(tasks []preset.ResolvedLogoTask, frame gocv.Mat, cal *calib.Calibration) (*MultiLogoResult, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("pipeline: frame is empty")
	}
	if cal == nil {
		return nil, fmt.Errorf("pipeline: calibration is nil")
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	// Resolve detectors up front so a configuration fault surfaces
	// before any detection work, with the offending task named.
	detectors := make([]detect.Detector, len(tasks))
	for i, task := range tasks {
		d, err := p.registry().New(task.DetectorKind, task.DetectorParams)
		if err != nil {
			return nil, fmt.Errorf("pipeline: task %q: %w", task.ID, err)
		}
		detectors[i] = d
	}

	results := make([]DetectionResult, len(tasks))
	if p.Workers > 1 && len(tasks) > 1 {
		p.runParallel(tasks, detectors, frame, cal, results)
	} else {
		for i, task := range tasks {
			results[i] = p.evaluateTask(task, detectors[i], frame, cal)
		}
	}

	return aggregate(results), nil
}

func (p *Pipeline) runParallel(tasks []preset.ResolvedLogoTask, detectors []detect.Detector, frame gocv.Mat, cal *calib.Calibration, results []DetectionResult) {
	sem := make(chan struct{}, p.Workers)
	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.evaluateTask(tasks[i], detectors[i], frame, cal)
		}(i)
	}
	wg.Wait()
}

// evaluateTask runs one detector over its region and classifies the
// outcome.
func (p *Pipeline) evaluateTask(task preset.ResolvedLogoTask, det detect.Detector, frame gocv.Mat, cal *calib.Calibration) DetectionResult {
	result := DetectionResult{TaskID: task.ID, Name: task.Name, Status: StatusNotFound}

	frameRect := geometry.RectInt{X: 0, Y: 0, Width: frame.Cols(), Height: frame.Rows()}
	roi := task.ROIPixels.Intersect(frameRect)
	if roi.Empty() {
		p.logger().Warn("task region lies outside the frame",
			"task", task.ID, "roi", task.ROIPixels, "frame", frameRect)
		return result
	}

	region := frame.Region(image.Rect(roi.X, roi.Y, roi.X+roi.Width, roi.Y+roi.Height))
	obs := det.Detect(region)
	region.Close()

	if !obs.Found {
		p.logger().Debug("logo not found", "task", task.ID, "detector", det.Kind())
		return result
	}

	raw := geometry.Pose2D{
		X:     float64(roi.X) + obs.CenterPx.X,
		Y:     float64(roi.Y) + obs.CenterPx.Y,
		Theta: obs.ThetaRad,
	}
	physical := geometry.Pose2D{
		X:     cal.ToPhysical(raw.X),
		Y:     cal.ToPhysical(raw.Y),
		Theta: raw.Theta,
	}

	diff := geometry.Difference(task.AbsolutePose, physical)
	if !obs.ThetaKnown {
		// No rotation estimate: the angular error is zero by
		// construction and the angular tolerance passes vacuously.
		// RotationEstimated=false makes that visible to the caller.
		diff.Theta = 0
	}

	result.Found = true
	result.RawPose = &raw
	result.PhysicalPose = &physical
	result.Error = &diff
	result.Confidence = obs.Confidence
	result.RotationEstimated = obs.ThetaKnown

	if geometry.WithinTolerance(diff, task.ToleranceMM, task.ToleranceRad) {
		result.Status = StatusOK
	} else {
		result.Status = StatusOutOfTolerance
	}

	p.logger().Debug("logo evaluated",
		"task", task.ID,
		"detector", det.Kind(),
		"status", result.Status,
		"linear_error_mm", diff.LinearError(),
		"confidence", obs.Confidence)
	return result
}

func aggregate(results []DetectionResult) *MultiLogoResult {
	overall := true
	var confSum float64
	var confCount int
	for _, r := range results {
		if r.Status != StatusOK {
			overall = false
		}
		if r.Found {
			confSum += r.Confidence
			confCount++
		}
	}
	mean := 0.0
	if confCount > 0 {
		mean = confSum / float64(confCount)
	}
	return &MultiLogoResult{Results: results, OverallSuccess: overall, MeanConfidence: mean}
}

func (p *Pipeline) registry() *detect.Registry {
	if p.Registry != nil {
		return p.Registry
	}
	return detect.NewRegistry()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
