package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
)

const (
	defaultAlertPageLimit = 50
	maxAlertPageLimit     = 200
)

type AlertService struct {
	alerts     repository.AlertsRepository
	crosswalks repository.CrosswalksRepository
	logger     *zap.Logger
	now        func() time.Time
}

func NewAlertService(alerts repository.AlertsRepository, crosswalks repository.CrosswalksRepository, logger *zap.Logger) *AlertService {
	return &AlertService{alerts: alerts, crosswalks: crosswalks, logger: logger, now: time.Now}
}

// Create validates in (applying the MEDIUM default) and persists it in one
// statement.
func (s *AlertService) Create(ctx context.Context, in *domain.NewAlert) (*domain.Alert, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: alert is required", domain.ErrValidation)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.CrosswalkID != nil {
		if _, err := s.crosswalks.GetCrosswalk(ctx, *in.CrosswalkID); err != nil {
			return nil, err
		}
	}
	a, err := s.alerts.CreateAlert(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Alert created",
		zap.String("alert_id", a.ID),
		zap.String("danger_level", string(a.DangerLevel)),
		zap.String("type", a.Type),
	)
	return a, nil
}

// GetAll returns matching alerts newest first.
func (s *AlertService) GetAll(ctx context.Context, filters repository.AlertFilters) ([]*domain.Alert, error) {
	alerts, _, err := s.alerts.ListAlerts(ctx, filters, repository.SortNewest, 1, 0)
	return alerts, err
}

func (s *AlertService) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	return s.alerts.GetAlert(ctx, id)
}

func (s *AlertService) Update(ctx context.Context, id string, patch domain.AlertPatch) (*domain.Alert, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.alerts.UpdateAlert(ctx, id, patch)
}

func (s *AlertService) Delete(ctx context.Context, id string) error {
	return s.alerts.DeleteAlert(ctx, id)
}

func (s *AlertService) GetStats(ctx context.Context) (*domain.AlertStats, error) {
	counts, err := s.alerts.CountAlertsByDangerLevel(ctx, repository.AlertFilters{})
	if err != nil {
		return nil, err
	}
	st := &domain.AlertStats{
		Low:    counts[domain.DangerLow],
		Medium: counts[domain.DangerMedium],
		High:   counts[domain.DangerHigh],
	}
	st.Total = st.Low + st.Medium + st.High
	return st, nil
}

// AlertQuery filters and pages alerts of one crosswalk. Zero values mean
// no filter, newest first, page 1, 50 per page.
type AlertQuery struct {
	StartDate   *time.Time
	EndDate     *time.Time
	DangerLevel *domain.DangerLevel
	SortBy      repository.AlertSort
	Page        int
	Limit       int
}

func (q *AlertQuery) normalize() error {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultAlertPageLimit
	}
	if q.Limit > maxAlertPageLimit {
		q.Limit = maxAlertPageLimit
	}
	if q.SortBy == "" {
		q.SortBy = repository.SortNewest
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return fmt.Errorf("%w: startDate must not be after endDate", domain.ErrValidation)
	}
	return nil
}

func (s *AlertService) GetAlertsByCrosswalk(ctx context.Context, crosswalkID string, q AlertQuery) (*domain.AlertPage, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.crosswalks.GetCrosswalk(ctx, crosswalkID); err != nil {
		return nil, err
	}

	filters := repository.AlertFilters{
		CrosswalkID: &crosswalkID,
		DangerLevel: q.DangerLevel,
		StartTime:   q.StartDate,
		EndTime:     q.EndDate,
	}
	alerts, total, err := s.alerts.ListAlerts(ctx, filters, q.SortBy, q.Page, q.Limit)
	if err != nil {
		return nil, err
	}
	totalPages := int(math.Ceil(float64(total) / float64(q.Limit)))
	return &domain.AlertPage{
		Alerts:     alerts,
		Total:      total,
		Page:       q.Page,
		TotalPages: totalPages,
		HasMore:    q.Page < totalPages,
	}, nil
}

// GetCrosswalkStats windows are anchored to the service clock at call time.
func (s *AlertService) GetCrosswalkStats(ctx context.Context, crosswalkID string) (*domain.CrosswalkAlertStats, error) {
	if _, err := s.crosswalks.GetCrosswalk(ctx, crosswalkID); err != nil {
		return nil, err
	}
	base := repository.AlertFilters{CrosswalkID: &crosswalkID}

	byLevel, err := s.alerts.CountAlertsByDangerLevel(ctx, base)
	if err != nil {
		return nil, err
	}
	st := &domain.CrosswalkAlertStats{ByDangerLevel: byLevel}
	for _, n := range byLevel {
		st.Total += n
	}

	now := s.now()
	windows := []struct {
		dst *int
		d   time.Duration
	}{
		{&st.Last24Hours, 24 * time.Hour},
		{&st.Last7Days, 7 * 24 * time.Hour},
		{&st.Last30Days, 30 * 24 * time.Hour},
	}
	for _, w := range windows {
		since := now.Add(-w.d)
		f := base
		f.StartTime = &since
		n, err := s.alerts.CountAlerts(ctx, f)
		if err != nil {
			return nil, err
		}
		*w.dst = n
	}
	return st, nil
}
