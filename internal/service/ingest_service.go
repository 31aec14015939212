package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/actuation"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/classifier"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/events"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/tasks"
)

// Collaborators of IngestService.

type Resolver interface {
	FindOrCreateByLocationAndCamera(ctx context.Context, loc domain.Location, cameraID string) (*domain.CrosswalkView, error)
}

type CrosswalkLookup interface {
	GetCrosswalk(ctx context.Context, crosswalkID string) (*domain.Crosswalk, error)
}

type AlertCreator interface {
	Create(ctx context.Context, in *domain.NewAlert) (*domain.Alert, error)
}

type Activator interface {
	Activate(ctx context.Context, crosswalkID string, pattern domain.Pattern, actx actuation.ActivationContext) actuation.ActivationResult
}

type TaskSubmitter interface {
	Submit(name string, fn tasks.Func) bool
}

// IngestRequest is one detection report from a camera pipeline. The alert
// timestamp is always stamped on the server.
type IngestRequest struct {
	CrosswalkID    string                 `json:"crosswalkId"`
	CameraID       string                 `json:"cameraId"`
	Location       domain.Location        `json:"location"`
	DangerLevel    string                 `json:"dangerLevel"`
	Confidence     *float64               `json:"confidence"`
	DetectionPhoto *domain.DetectionPhoto `json:"detectionPhoto"`
	PhotoURL       string                 `json:"detectionPhotoUrl"`
	Detections     []domain.RawDetection  `json:"detections"`
}

// photoURL prefers detectionPhoto.url over the flat detectionPhotoUrl.
func (r IngestRequest) photoURL() string {
	if r.DetectionPhoto != nil {
		if u := strings.TrimSpace(r.DetectionPhoto.URL); u != "" {
			return u
		}
	}
	return strings.TrimSpace(r.PhotoURL)
}

type IngestService struct {
	resolver   Resolver
	crosswalks CrosswalkLookup
	alerts     AlertCreator
	activator  Activator
	tasks      TaskSubmitter
	events     events.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestService pub may be nil.
func NewIngestService(
	resolver Resolver,
	crosswalks CrosswalkLookup,
	alerts AlertCreator,
	activator Activator,
	runner TaskSubmitter,
	pub events.Publisher,
	logger *zap.Logger,
) *IngestService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &IngestService{
		resolver:   resolver,
		crosswalks: crosswalks,
		alerts:     alerts,
		activator:  activator,
		tasks:      runner,
		events:     pub,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest persists an alert for req and returns it once stored. LED activation
// and event publishing run on the task runner and never affect the result.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*domain.Alert, error) {
	detections := make([]domain.Detection, 0, len(req.Detections))
	for i, raw := range req.Detections {
		d, err := raw.Normalize()
		if err != nil {
			return nil, fmt.Errorf("detections[%d]: %w", i, err)
		}
		detections = append(detections, d)
	}

	var explicit domain.DangerLevel
	if strings.TrimSpace(req.DangerLevel) != "" {
		level, err := domain.ParseDangerLevel(req.DangerLevel)
		if err != nil {
			return nil, err
		}
		explicit = level
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		return nil, fmt.Errorf("%w: confidence must be within [0,1]", domain.ErrValidation)
	}

	crosswalkID, err := s.resolveCrosswalk(ctx, req)
	if err != nil {
		return nil, err
	}

	var assessment *domain.DangerAssessment
	if len(detections) > 0 {
		a := classifier.Classify(detections)
		assessment = &a
	}

	in := &domain.NewAlert{
		DangerLevel:     chooseDangerLevel(explicit, req.Confidence, assessment),
		PhotoURL:        req.photoURL(),
		Confidence:      req.Confidence,
		DetectedObjects: detections,
		Timestamp:       s.now().UTC(),
	}
	if crosswalkID != "" {
		in.CrosswalkID = &crosswalkID
	}
	if in.Confidence == nil && len(detections) > 0 {
		mean := classifier.MeanConfidence(detections)
		in.Confidence = &mean
	}
	if assessment != nil {
		in.Type = assessment.Type
		in.Severity = assessment.Severity
	}

	alert, err := s.alerts.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	if assessment != nil && assessment.HasDanger && crosswalkID != "" {
		s.submitActivation(crosswalkID, *assessment)
	}
	s.publishCreated(alert)
	return alert, nil
}

// resolveCrosswalk returns "" when the alert stays unlinked. Only an unknown
// explicit crosswalkId is an error; resolver failures are logged.
func (s *IngestService) resolveCrosswalk(ctx context.Context, req IngestRequest) (string, error) {
	if id := strings.TrimSpace(req.CrosswalkID); id != "" {
		cw, err := s.crosswalks.GetCrosswalk(ctx, id)
		if err != nil {
			return "", err
		}
		return cw.ID, nil
	}
	if req.Location.IsEmpty() {
		return "", nil
	}
	view, err := s.resolver.FindOrCreateByLocationAndCamera(ctx, req.Location, req.CameraID)
	if err != nil {
		s.logger.Warn("Crosswalk resolution failed, alert stays unlinked",
			zap.String("location", req.Location.Key()),
			zap.String("camera_id", req.CameraID),
			zap.Error(err),
		)
		return "", nil
	}
	return view.ID, nil
}

// chooseDangerLevel precedence: explicit level, supplied confidence,
// detection assessment, MEDIUM.
func chooseDangerLevel(explicit domain.DangerLevel, confidence *float64, assessment *domain.DangerAssessment) domain.DangerLevel {
	switch {
	case explicit != "":
		return explicit
	case confidence != nil:
		return domain.DangerLevelFromConfidence(*confidence)
	case assessment != nil:
		return domain.DangerLevelFromSeverity(assessment.Severity)
	default:
		return domain.DefaultDangerLevel
	}
}

func (s *IngestService) submitActivation(crosswalkID string, a domain.DangerAssessment) {
	pattern := actuation.PatternForSeverity(a.Severity)
	actx := actuation.ActivationContext{Type: a.Type, Severity: a.Severity}

	ok := s.tasks.Submit("led.activate:"+crosswalkID, func(ctx context.Context) error {
		res := s.activator.Activate(ctx, crosswalkID, pattern, actx)
		if !res.Success {
			return fmt.Errorf("LED activation for crosswalk %s failed: %s", crosswalkID, res.Message)
		}
		return nil
	})
	if !ok {
		s.logger.Warn("LED activation not scheduled", zap.String("crosswalk_id", crosswalkID))
	}
}

func (s *IngestService) publishCreated(alert *domain.Alert) {
	e := events.New(events.TypeAlertCreated, alert)
	s.tasks.Submit("event:"+events.TypeAlertCreated, func(ctx context.Context) error {
		return s.events.Publish(ctx, e)
	})
}
