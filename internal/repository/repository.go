package repository

import (
	"context"
	"time"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

// AlertsRepository persists alerts. Lookups of unknown ids return
// domain.ErrNotFound.
type AlertsRepository interface {
	CreateAlert(ctx context.Context, alert *domain.NewAlert) (*domain.Alert, error)
	GetAlert(ctx context.Context, alertID string) (*domain.Alert, error)

	// ListAlerts returns one page and the total match count.
	// size <= 0 returns every match.
	ListAlerts(ctx context.Context, filters AlertFilters, sort AlertSort, page, size int) ([]*domain.Alert, int, error)

	UpdateAlert(ctx context.Context, alertID string, patch domain.AlertPatch) (*domain.Alert, error)
	DeleteAlert(ctx context.Context, alertID string) error

	CountAlerts(ctx context.Context, filters AlertFilters) (int, error)
	CountAlertsByDangerLevel(ctx context.Context, filters AlertFilters) (map[domain.DangerLevel]int, error)
}

// AlertFilters nil fields are not filtered on. Time bounds are inclusive.
type AlertFilters struct {
	DangerLevel *domain.DangerLevel
	CrosswalkID *string
	StartTime   *time.Time
	EndTime     *time.Time
}

type AlertSort string

const (
	SortNewest AlertSort = "newest"
	SortOldest AlertSort = "oldest"
	SortDanger AlertSort = "danger" // HIGH > MEDIUM > LOW, then newest
)

// ParseAlertSort falls back to SortNewest for unknown values.
func ParseAlertSort(s string) AlertSort {
	switch AlertSort(s) {
	case SortOldest:
		return SortOldest
	case SortDanger:
		return SortDanger
	default:
		return SortNewest
	}
}

// CrosswalksRepository persists crosswalks.
// CreateCrosswalk returns domain.ErrConflict when the location already exists.
type CrosswalksRepository interface {
	GetCrosswalk(ctx context.Context, crosswalkID string) (*domain.Crosswalk, error)
	GetCrosswalkByLocation(ctx context.Context, loc domain.Location) (*domain.Crosswalk, error)
	ListCrosswalks(ctx context.Context) ([]*domain.Crosswalk, error)
	CreateCrosswalk(ctx context.Context, cw *domain.Crosswalk) (*domain.Crosswalk, error)
	UpdateCrosswalk(ctx context.Context, crosswalkID string, patch domain.CrosswalkPatch) (*domain.Crosswalk, error)
	DeleteCrosswalk(ctx context.Context, crosswalkID string) error
	CountCrosswalks(ctx context.Context) (int, error)

	// UpdateLastActivation replaces ledSystem.lastActivation only.
	UpdateLastActivation(ctx context.Context, crosswalkID string, activation domain.LastActivation) error

	IsCameraLinked(ctx context.Context, cameraID string) (bool, error)
	IsLEDLinked(ctx context.Context, ledID string) (bool, error)
}

type CamerasRepository interface {
	CreateCamera(ctx context.Context, status domain.CameraStatus) (*domain.Camera, error)
	GetCamera(ctx context.Context, cameraID string) (*domain.Camera, error)
	ListCameras(ctx context.Context) ([]*domain.Camera, error)
	UpdateCameraStatus(ctx context.Context, cameraID string, status domain.CameraStatus) (*domain.Camera, error)
	DeleteCamera(ctx context.Context, cameraID string) error
}

type LEDsRepository interface {
	CreateLED(ctx context.Context) (*domain.LED, error)
	GetLED(ctx context.Context, ledID string) (*domain.LED, error)
	ListLEDs(ctx context.Context) ([]*domain.LED, error)
	DeleteLED(ctx context.Context, ledID string) error
}
