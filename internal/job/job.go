// Package job turns one completed alignment check into a persistent job
// card the press operator's log can archive.
package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"alignpress/internal/pipeline"
	"alignpress/pkg/geometry"
)

// LogoRecord is one logo's outcome on a job card. Errors are reported in
// the operator's units: millimeters and degrees.
type LogoRecord struct {
	LogoID       string          `json:"logo_id"`
	Name         string          `json:"name,omitempty"`
	Status       pipeline.Status `json:"status"`
	DxMM         *float64        `json:"dx_mm,omitempty"`
	DyMM         *float64        `json:"dy_mm,omitempty"`
	DthetaDeg    *float64        `json:"dtheta_deg,omitempty"`
	Confidence   float64         `json:"confidence"`
	RotationSeen bool            `json:"rotation_estimated"`
}

// Card documents one press alignment check.
type Card struct {
	JobID          string       `json:"job_id"`
	Timestamp      time.Time    `json:"timestamp"`
	PlatenName     string       `json:"platen_name"`
	StyleID        string       `json:"style_id"`
	VariantID      string       `json:"variant_id,omitempty"`
	Logos          []LogoRecord `json:"logos"`
	OverallSuccess bool         `json:"overall_success"`
	MeanConfidence float64      `json:"mean_confidence"`
}

// NewCard builds a job card from a pipeline result.
func NewCard(platenName, styleID, variantID string, result *pipeline.MultiLogoResult) *Card {
	card := &Card{
		JobID:          uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		PlatenName:     platenName,
		StyleID:        styleID,
		VariantID:      variantID,
		Logos:          make([]LogoRecord, len(result.Results)),
		OverallSuccess: result.OverallSuccess,
		MeanConfidence: result.MeanConfidence,
	}
	for i, r := range result.Results {
		card.Logos[i] = newLogoRecord(r)
	}
	return card
}

func newLogoRecord(r pipeline.DetectionResult) LogoRecord {
	record := LogoRecord{
		LogoID:       r.TaskID,
		Name:         r.Name,
		Status:       r.Status,
		Confidence:   r.Confidence,
		RotationSeen: r.RotationEstimated,
	}
	if r.Error != nil {
		dx, dy := r.Error.X, r.Error.Y
		dtheta := geometry.RadToDeg(r.Error.Theta)
		record.DxMM = &dx
		record.DyMM = &dy
		record.DthetaDeg = &dtheta
	}
	return record
}

// Save writes the card as JSON into a directory, named by job id.
func (c *Card) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("job_%s.json", c.JobID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
