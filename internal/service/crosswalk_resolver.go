package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
)

// resolveAttempts bounds the lookup/create loop when creates race.
const resolveAttempts = 3

// LocationLocker serializes work on one location key across replicas.
type LocationLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// CrosswalkResolver maps a raw location onto exactly one crosswalk. The
// crosswalks_location_key constraint is what guarantees uniqueness; the
// optional lock only reduces contention on it.
type CrosswalkResolver struct {
	crosswalks repository.CrosswalksRepository
	cameras    repository.CamerasRepository
	leds       repository.LEDsRepository
	lock       LocationLocker
	logger     *zap.Logger
}

// NewCrosswalkResolver lock may be nil.
func NewCrosswalkResolver(
	crosswalks repository.CrosswalksRepository,
	cameras repository.CamerasRepository,
	leds repository.LEDsRepository,
	lock LocationLocker,
	logger *zap.Logger,
) *CrosswalkResolver {
	return &CrosswalkResolver{crosswalks: crosswalks, cameras: cameras, leds: leds, lock: lock, logger: logger}
}

// FindOrCreateByLocationAndCamera returns the crosswalk at loc, creating it
// when absent and relinking its camera when cameraID differs.
func (r *CrosswalkResolver) FindOrCreateByLocationAndCamera(ctx context.Context, loc domain.Location, cameraID string) (*domain.CrosswalkView, error) {
	loc = loc.Normalize()
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	cameraID = strings.TrimSpace(cameraID)

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, loc.Key())
		if err != nil {
			r.logger.Warn("Location lock unavailable, relying on unique constraint",
				zap.String("location", loc.Key()),
				zap.Error(err),
			)
		} else {
			defer release()
		}
	}

	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		cw, err := r.crosswalks.GetCrosswalkByLocation(ctx, loc)
		if err == nil {
			if cw, err = r.relinkCamera(ctx, cw, cameraID); err != nil {
				return nil, err
			}
			return buildView(ctx, r.cameras, r.leds, r.logger, cw), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up crosswalk: %w", err)
		}

		if cameraID != "" {
			if _, err := r.cameras.GetCamera(ctx, cameraID); err != nil {
				return nil, err
			}
		}
		in := &domain.Crosswalk{Location: loc}
		if cameraID != "" {
			in.CameraID = &cameraID
		}
		cw, err = r.crosswalks.CreateCrosswalk(ctx, in)
		if err == nil {
			r.logger.Info("Crosswalk created from detection",
				zap.String("crosswalk_id", cw.ID),
				zap.String("location", loc.Key()),
			)
			return buildView(ctx, r.cameras, r.leds, r.logger, cw), nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		r.logger.Debug("Crosswalk created concurrently, retrying lookup",
			zap.String("location", loc.Key()),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("%w: crosswalk at %s not resolved after %d attempts", domain.ErrConflict, loc.Key(), resolveAttempts)
}

func (r *CrosswalkResolver) relinkCamera(ctx context.Context, cw *domain.Crosswalk, cameraID string) (*domain.Crosswalk, error) {
	if cameraID == "" || (cw.CameraID != nil && *cw.CameraID == cameraID) {
		return cw, nil
	}
	if _, err := r.cameras.GetCamera(ctx, cameraID); err != nil {
		return nil, err
	}
	updated, err := r.crosswalks.UpdateCrosswalk(ctx, cw.ID, domain.CrosswalkPatch{CameraID: &cameraID})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Crosswalk camera relinked",
		zap.String("crosswalk_id", cw.ID),
		zap.String("camera_id", cameraID),
	)
	return updated, nil
}
