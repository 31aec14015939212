package domain

import "strings"

// Category is the canonical object class used by the classifier.
type Category string

const (
	CategoryPerson     Category = "person"
	CategoryChild      Category = "child"
	CategoryVehicle    Category = "vehicle"
	CategoryBicycle    Category = "bicycle"
	CategoryMotorcycle Category = "motorcycle"
	CategoryOther      Category = "other"
)

// categoryAliases maps detector labels onto canonical categories.
// Labels not listed here normalize to CategoryOther.
var categoryAliases = map[string]Category{
	"person":     CategoryPerson,
	"pedestrian": CategoryPerson,
	"child":      CategoryChild,
	"vehicle":    CategoryVehicle,
	"car":        CategoryVehicle,
	"truck":      CategoryVehicle,
	"bus":        CategoryVehicle,
	"van":        CategoryVehicle,
	"bicycle":    CategoryBicycle,
	"bike":       CategoryBicycle,
	"motorcycle": CategoryMotorcycle,
	"motorbike":  CategoryMotorcycle,
}

// NormalizeCategory maps a raw detector label (case-insensitive) to a Category.
func NormalizeCategory(label string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return c
	}
	return CategoryOther
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one object reported by the detector for a single frame.
type Detection struct {
	Class       Category    `json:"class"`
	Label       string      `json:"label,omitempty"` // raw detector label before normalization
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"boundingBox"`
}

// RawDetection is the wire shape accepted from detectors.
// Both "class" and "type" are accepted as the label key.
type RawDetection struct {
	Class       string      `json:"class"`
	Type        string      `json:"type"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"boundingBox"`
}

// Normalize validates confidence and maps the label to a Category.
func (r RawDetection) Normalize() (Detection, error) {
	label := r.Class
	if label == "" {
		label = r.Type
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return Detection{}, newValidationError("detection confidence must be within [0,1]")
	}
	return Detection{
		Class:       NormalizeCategory(label),
		Label:       label,
		Confidence:  r.Confidence,
		BoundingBox: r.BoundingBox,
	}, nil
}

// Severity of a danger assessment.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Assessment types produced by the classifier.
const (
	AssessmentPedestrianVehicleClose = "pedestrian_vehicle_close"
	AssessmentChildDetected          = "child_detected"
	AssessmentBicycleVehicleClose    = "bicycle_vehicle_close"
	AssessmentCrowdedCrosswalk       = "crowded_crosswalk"
	AssessmentNormalActivity         = "normal_activity"
)

// DangerAssessment is derived from a set of detections; never stored directly.
type DangerAssessment struct {
	HasDanger            bool             `json:"hasDanger"`
	Severity             Severity         `json:"severity"`
	Type                 string           `json:"type,omitempty"`
	Reason               string           `json:"reason"`
	DetectedObjectCounts map[Category]int `json:"detectedObjectCounts,omitempty"`
}
