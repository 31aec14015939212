// Package classifier turns a batch of detections into a danger assessment.
package classifier

import (
	"fmt"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

// partition holds per-category counts. Motorcycles and "other" are not
// inspected by any rule.
type partition struct {
	pedestrians int
	children    int
	vehicles    int
	bicycles    int
}

func partitionDetections(detections []domain.Detection) partition {
	var p partition
	for _, d := range detections {
		switch d.Class {
		case domain.CategoryPerson:
			p.pedestrians++
		case domain.CategoryChild:
			p.children++
		case domain.CategoryVehicle:
			p.vehicles++
		case domain.CategoryBicycle:
			p.bicycles++
		}
	}
	return p
}

// rule returns ok=false when it does not apply.
type rule func(p partition) (domain.DangerAssessment, bool)

// rules are evaluated in order; the first match wins. Order matters: a child
// next to a vehicle is critical, not child_detected.
var rules = []rule{
	pedestrianVehicleRule,
	childRule,
	bicycleVehicleRule,
	crowdedRule,
	normalActivityRule,
}

// Classify is total and deterministic over any input, including nil.
func Classify(detections []domain.Detection) domain.DangerAssessment {
	if len(detections) == 0 {
		return domain.DangerAssessment{
			HasDanger: false,
			Severity:  domain.SeverityLow,
			Reason:    "no objects detected",
		}
	}

	p := partitionDetections(detections)
	for _, r := range rules {
		if a, ok := r(p); ok {
			return a
		}
	}

	return domain.DangerAssessment{
		HasDanger: false,
		Severity:  domain.SeverityLow,
		Reason:    "no danger detected",
	}
}

func pedestrianVehicleRule(p partition) (domain.DangerAssessment, bool) {
	if p.pedestrians+p.children == 0 || p.vehicles == 0 {
		return domain.DangerAssessment{}, false
	}
	return domain.DangerAssessment{
		HasDanger: true,
		Severity:  domain.SeverityCritical,
		Type:      domain.AssessmentPedestrianVehicleClose,
		Reason:    fmt.Sprintf("%d pedestrian(s) and %d vehicle(s) detected", p.pedestrians+p.children, p.vehicles),
		DetectedObjectCounts: map[domain.Category]int{
			domain.CategoryPerson:  p.pedestrians,
			domain.CategoryChild:   p.children,
			domain.CategoryVehicle: p.vehicles,
		},
	}, true
}

func childRule(p partition) (domain.DangerAssessment, bool) {
	if p.children == 0 {
		return domain.DangerAssessment{}, false
	}
	return domain.DangerAssessment{
		HasDanger:            true,
		Severity:             domain.SeverityHigh,
		Type:                 domain.AssessmentChildDetected,
		Reason:               fmt.Sprintf("%d child(ren) detected at crosswalk", p.children),
		DetectedObjectCounts: map[domain.Category]int{domain.CategoryChild: p.children},
	}, true
}

func bicycleVehicleRule(p partition) (domain.DangerAssessment, bool) {
	if p.bicycles == 0 || p.vehicles == 0 {
		return domain.DangerAssessment{}, false
	}
	return domain.DangerAssessment{
		HasDanger: true,
		Severity:  domain.SeverityHigh,
		Type:      domain.AssessmentBicycleVehicleClose,
		Reason:    fmt.Sprintf("%d bicycle(s) and %d vehicle(s) detected", p.bicycles, p.vehicles),
		DetectedObjectCounts: map[domain.Category]int{
			domain.CategoryBicycle: p.bicycles,
			domain.CategoryVehicle: p.vehicles,
		},
	}, true
}

func crowdedRule(p partition) (domain.DangerAssessment, bool) {
	if p.pedestrians < 3 {
		return domain.DangerAssessment{}, false
	}
	return domain.DangerAssessment{
		HasDanger:            true,
		Severity:             domain.SeverityMedium,
		Type:                 domain.AssessmentCrowdedCrosswalk,
		Reason:               fmt.Sprintf("%d pedestrians detected (crowded)", p.pedestrians),
		DetectedObjectCounts: map[domain.Category]int{domain.CategoryPerson: p.pedestrians},
	}, true
}

func normalActivityRule(p partition) (domain.DangerAssessment, bool) {
	if p.pedestrians == 0 && p.bicycles == 0 {
		return domain.DangerAssessment{}, false
	}
	return domain.DangerAssessment{
		HasDanger: false,
		Severity:  domain.SeverityLow,
		Type:      domain.AssessmentNormalActivity,
		Reason:    "normal crosswalk activity",
		DetectedObjectCounts: map[domain.Category]int{
			domain.CategoryPerson:  p.pedestrians,
			domain.CategoryBicycle: p.bicycles,
		},
	}, true
}

// MeanConfidence is the arithmetic mean of all confidences, 0 when empty.
func MeanConfidence(detections []domain.Detection) float64 {
	if len(detections) == 0 {
		return 0
	}
	var sum float64
	for _, d := range detections {
		sum += d.Confidence
	}
	return sum / float64(len(detections))
}
