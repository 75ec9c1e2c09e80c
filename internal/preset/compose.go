package preset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"alignpress/internal/calib"
	"alignpress/pkg/geometry"
)

// CompositionError reports why a style/variant/calibration combination
// cannot be composed. LogoID and Field narrow the failure down for the
// caller's log.
type CompositionError struct {
	StyleID string
	LogoID  string
	Field   string
	Reason  string
}

func (e *CompositionError) Error() string {
	msg := fmt.Sprintf("compose style %q", e.StyleID)
	if e.LogoID != "" {
		msg += fmt.Sprintf(" logo %q", e.LogoID)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	return msg + ": " + e.Reason
}

// ResolvedLogoTask is one fully resolved detection task: absolute target
// pose in millimeters, search region in pixels, effective tolerances and
// detector selection. Tasks are created fresh per composition and never
// mutated afterwards.
type ResolvedLogoTask struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	AbsolutePose   geometry.Pose2D  `json:"absolute_pose"`
	ROIPixels      geometry.RectInt `json:"roi_pixels"`
	ToleranceMM    float64          `json:"tolerance_mm"`
	ToleranceRad   float64          `json:"tolerance_rad"`
	DetectorKind   string           `json:"detector_kind"`
	DetectorParams map[string]any   `json:"detector_params,omitempty"`
	Priority       int              `json:"priority"`
}

// Composition is the result of resolving a style against a variant and
// calibration. Tasks are in detection order (ascending priority, style
// order on ties). Warnings carry advisory conditions such as a stale
// calibration.
type Composition struct {
	Tasks    []ResolvedLogoTask
	Warnings []string
}

// Options control composition-time calibration freshness checks. The zero
// value uses time.Now and the default thresholds.
type Options struct {
	Now         time.Time
	RemindAfter time.Duration
	ExpireAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	if o.RemindAfter == 0 {
		o.RemindAfter = calib.DefaultRemindAfter
	}
	if o.ExpireAfter == 0 {
		o.ExpireAfter = calib.DefaultExpireAfter
	}
	return o
}

// Compose resolves a style and size variant against a calibration into an
// ordered task list. It is pure and deterministic: identical inputs yield
// identical output, and no ambient state is consulted.
//
// A nil variant composes the style as authored (identity variant).
func Compose(style *Style, variant *SizeVariant, cal *calib.Calibration, opts Options) (*Composition, error) {
	opts = opts.withDefaults()

	if style == nil {
		return nil, &CompositionError{Reason: "style is nil"}
	}
	if err := style.Validate(); err != nil {
		return nil, &CompositionError{StyleID: style.ID, Field: "logos", Reason: err.Error()}
	}
	if cal == nil {
		return nil, &CompositionError{StyleID: style.ID, Field: "calibration", Reason: "calibration is nil"}
	}
	if err := cal.Validate(); err != nil {
		// A non-positive factor is a calibration fault, not a
		// composition fault; surface it unchanged.
		return nil, err
	}
	if cal.IsExpired(opts.Now, opts.ExpireAfter) {
		return nil, &CompositionError{
			StyleID: style.ID,
			Field:   "calibration",
			Reason: fmt.Sprintf("calibration captured %s is older than expiry %s",
				cal.CapturedAt.Format(time.RFC3339), opts.ExpireAfter),
		}
	}

	if variant != nil {
		if variant.BaseStyleID != style.ID {
			return nil, &CompositionError{
				StyleID: style.ID,
				Field:   "base_style_id",
				Reason:  fmt.Sprintf("variant %q targets style %q", variant.ID, variant.BaseStyleID),
			}
		}
		if variant.ScaleFactor < 0 {
			return nil, &CompositionError{
				StyleID: style.ID,
				Field:   "scale_factor",
				Reason:  fmt.Sprintf("scale factor %v must be positive", variant.ScaleFactor),
			}
		}
		if err := checkOffsetIDs(style, variant); err != nil {
			return nil, err
		}
		if variant.ToleranceScale != nil && *variant.ToleranceScale <= 0 {
			return nil, &CompositionError{
				StyleID: style.ID,
				Field:   "tolerance_scale",
				Reason:  fmt.Sprintf("tolerance scale %v must be positive", *variant.ToleranceScale),
			}
		}
	}

	comp := &Composition{Tasks: make([]ResolvedLogoTask, 0, len(style.Logos))}
	if cal.IsStale(opts.Now, opts.RemindAfter) {
		comp.Warnings = append(comp.Warnings,
			fmt.Sprintf("calibration captured %s is due for verification", cal.CapturedAt.Format(time.RFC3339)))
	}

	scale := variant.EffectiveScale()
	for _, logo := range style.Logos {
		comp.Tasks = append(comp.Tasks, resolveLogo(logo, variant, scale, cal))
	}

	// Detection order: ascending priority, stable so ties keep the
	// style's authored order.
	sort.SliceStable(comp.Tasks, func(i, j int) bool {
		return comp.Tasks[i].Priority < comp.Tasks[j].Priority
	})

	return comp, nil
}

// checkOffsetIDs rejects variants that carry offsets for logos the style
// does not define. IDs are reported in lexical order so the error is
// deterministic.
func checkOffsetIDs(style *Style, variant *SizeVariant) error {
	ids := make([]string, 0, len(variant.OffsetsByID))
	for id := range variant.OffsetsByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := style.Logo(id); !ok {
			return &CompositionError{
				StyleID: style.ID,
				LogoID:  id,
				Field:   "offsets_by_id",
				Reason:  "offset references a logo the style does not define",
			}
		}
	}
	return nil
}

func resolveLogo(logo LogoSpec, variant *SizeVariant, scale float64, cal *calib.Calibration) ResolvedLogoTask {
	// Scale stretches position about the platen origin; rotation is
	// untouched. The per-logo offset applies after scaling.
	scaled := logo.NominalPose.ScalePosition(scale)
	absolute := scaled.Add(variant.Offset(logo.ID))

	// ROI: convert each coordinate to pixels, then grow or shrink the
	// region about its own center with the garment size.
	roiPx := geometry.Rect{
		X:      cal.ToPixels(logo.ROI.X),
		Y:      cal.ToPixels(logo.ROI.Y),
		Width:  cal.ToPixels(logo.ROI.Width),
		Height: cal.ToPixels(logo.ROI.Height),
	}.ScaledAboutCenter(scale)

	tolMM := logo.ToleranceMM
	tolRad := logo.ToleranceRad
	if variant != nil && variant.ToleranceScale != nil {
		tolMM *= *variant.ToleranceScale
		if !variant.LinearToleranceOnly {
			tolRad *= *variant.ToleranceScale
		}
	}

	return ResolvedLogoTask{
		ID:             logo.ID,
		Name:           logo.Name,
		AbsolutePose:   absolute,
		ROIPixels:      roundRect(roiPx),
		ToleranceMM:    tolMM,
		ToleranceRad:   tolRad,
		DetectorKind:   logo.DetectorKind,
		DetectorParams: copyParams(logo.DetectorParams),
		Priority:       logo.Priority,
	}
}

func roundRect(r geometry.Rect) geometry.RectInt {
	return geometry.RectInt{
		X:      int(math.Round(r.X)),
		Y:      int(math.Round(r.Y)),
		Width:  int(math.Round(r.Width)),
		Height: int(math.Round(r.Height)),
	}
}

// copyParams detaches the task's parameter map from the style so tasks
// stay immutable even if the caller edits the style afterwards.
func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
