package domain

import (
	"fmt"
	"strings"
	"time"
)

// DangerLevel is the persisted projection of an assessment severity.
type DangerLevel string

const (
	DangerLow    DangerLevel = "LOW"
	DangerMedium DangerLevel = "MEDIUM"
	DangerHigh   DangerLevel = "HIGH"
)

// DefaultDangerLevel is used when neither a level nor a confidence is supplied.
const DefaultDangerLevel = DangerMedium

// ParseDangerLevel accepts LOW/MEDIUM/HIGH in any case.
func ParseDangerLevel(s string) (DangerLevel, error) {
	switch DangerLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case DangerLow:
		return DangerLow, nil
	case DangerMedium:
		return DangerMedium, nil
	case DangerHigh:
		return DangerHigh, nil
	}
	return "", newValidationError(fmt.Sprintf("invalid dangerLevel %q (expected LOW, MEDIUM or HIGH)", s))
}

// Rank orders levels for danger-first sorting (HIGH=3 ... LOW=1).
func (l DangerLevel) Rank() int {
	switch l {
	case DangerHigh:
		return 3
	case DangerMedium:
		return 2
	case DangerLow:
		return 1
	}
	return 0
}

// DangerLevelFromConfidence: >=0.7 HIGH, >=0.4 MEDIUM, else LOW.
func DangerLevelFromConfidence(c float64) DangerLevel {
	switch {
	case c >= 0.7:
		return DangerHigh
	case c >= 0.4:
		return DangerMedium
	default:
		return DangerLow
	}
}

// DangerLevelFromSeverity coarsens an assessment severity. critical and high
// both persist as HIGH.
func DangerLevelFromSeverity(s Severity) DangerLevel {
	switch s {
	case SeverityCritical, SeverityHigh:
		return DangerHigh
	case SeverityMedium:
		return DangerMedium
	default:
		return DangerLow
	}
}

type DetectionPhoto struct {
	URL string `json:"url"`
}

// Alert is a persisted danger event (alerts table). Immutable apart from operator patches of
// DangerLevel and DetectionPhoto.
type Alert struct {
	ID              string          `json:"id" db:"alert_id"`
	CrosswalkID     *string         `json:"crosswalkId" db:"crosswalk_id"`
	DangerLevel     DangerLevel     `json:"dangerLevel" db:"danger_level"`
	DetectionPhoto  *DetectionPhoto `json:"detectionPhoto,omitempty" db:"photo_url"`
	Type            string          `json:"type,omitempty" db:"alert_type"`
	Severity        Severity        `json:"severity,omitempty" db:"severity"`
	Confidence      *float64        `json:"confidence,omitempty" db:"confidence"`
	DetectedObjects []Detection     `json:"detectedObjects,omitempty" db:"detected_objects"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewAlert is the validated input to AlertsRepository.CreateAlert.
type NewAlert struct {
	CrosswalkID     *string
	DangerLevel     DangerLevel
	PhotoURL        string
	Type            string
	Severity        Severity
	Confidence      *float64
	DetectedObjects []Detection
	Timestamp       time.Time
}

// Validate applies the MEDIUM default and rejects anything else malformed.
func (n *NewAlert) Validate() error {
	if n.DangerLevel == "" {
		n.DangerLevel = DefaultDangerLevel
	}
	level, err := ParseDangerLevel(string(n.DangerLevel))
	if err != nil {
		return err
	}
	n.DangerLevel = level
	if n.CrosswalkID != nil && strings.TrimSpace(*n.CrosswalkID) == "" {
		n.CrosswalkID = nil
	}
	if n.Confidence != nil && (*n.Confidence < 0 || *n.Confidence > 1) {
		return newValidationError("confidence must be within [0,1]")
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	return nil
}

// AlertPatch holds the operator-editable fields. Nil means unchanged.
type AlertPatch struct {
	DangerLevel    *DangerLevel
	DetectionPhoto *DetectionPhoto
}

// Validate requires at least one field and canonicalizes DangerLevel.
func (p *AlertPatch) Validate() error {
	if p.DangerLevel == nil && p.DetectionPhoto == nil {
		return newValidationError("no updatable fields provided (dangerLevel, detectionPhoto)")
	}
	if p.DangerLevel != nil {
		level, err := ParseDangerLevel(string(*p.DangerLevel))
		if err != nil {
			return err
		}
		p.DangerLevel = &level
	}
	return nil
}

// AlertStats point-in-time counts over all alerts.
type AlertStats struct {
	Total  int `json:"total"`
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// CrosswalkAlertStats windowed counts for a single crosswalk.
type CrosswalkAlertStats struct {
	Total         int                 `json:"total"`
	ByDangerLevel map[DangerLevel]int `json:"byDangerLevel"`
	Last24Hours   int                 `json:"last24Hours"`
	Last7Days     int                 `json:"last7Days"`
	Last30Days    int                 `json:"last30Days"`
}

// AlertPage is one page of GetAlertsByCrosswalk.
type AlertPage struct {
	Alerts     []*Alert `json:"alerts"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	HasMore    bool     `json:"hasMore"`
}

func newValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
