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

type CrosswalkService struct {
	crosswalks repository.CrosswalksRepository
	cameras    repository.CamerasRepository
	leds       repository.LEDsRepository
	logger     *zap.Logger
}

func NewCrosswalkService(
	crosswalks repository.CrosswalksRepository,
	cameras repository.CamerasRepository,
	leds repository.LEDsRepository,
	logger *zap.Logger,
) *CrosswalkService {
	return &CrosswalkService{crosswalks: crosswalks, cameras: cameras, leds: leds, logger: logger}
}

type CreateCrosswalkRequest struct {
	Location  domain.Location   `json:"location"`
	CameraID  string            `json:"cameraId"`
	LEDID     string            `json:"ledId"`
	LEDSystem *domain.LEDSystem `json:"ledSystem"`
}

func (s *CrosswalkService) Create(ctx context.Context, req CreateCrosswalkRequest) (*domain.CrosswalkView, error) {
	if err := req.Location.Validate(); err != nil {
		return nil, err
	}
	in := &domain.Crosswalk{Location: req.Location.Normalize()}

	if id := strings.TrimSpace(req.CameraID); id != "" {
		if _, err := s.cameras.GetCamera(ctx, id); err != nil {
			return nil, err
		}
		in.CameraID = &id
	}
	if id := strings.TrimSpace(req.LEDID); id != "" {
		if _, err := s.leds.GetLED(ctx, id); err != nil {
			return nil, err
		}
		in.LEDID = &id
	}
	if req.LEDSystem != nil {
		sys := *req.LEDSystem
		sys.LastActivation = nil
		sys.ApplyDefaults()
		if err := sys.Validate(); err != nil {
			return nil, err
		}
		in.LEDSystem = &sys
	}

	cw, err := s.crosswalks.CreateCrosswalk(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Crosswalk created", zap.String("crosswalk_id", cw.ID), zap.String("location", cw.Location.Key()))
	return buildView(ctx, s.cameras, s.leds, s.logger, cw), nil
}

func (s *CrosswalkService) List(ctx context.Context) ([]*domain.CrosswalkView, error) {
	crosswalks, err := s.crosswalks.ListCrosswalks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.CrosswalkView, 0, len(crosswalks))
	for _, cw := range crosswalks {
		out = append(out, buildView(ctx, s.cameras, s.leds, s.logger, cw))
	}
	return out, nil
}

func (s *CrosswalkService) Get(ctx context.Context, id string) (*domain.CrosswalkView, error) {
	cw, err := s.crosswalks.GetCrosswalk(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildView(ctx, s.cameras, s.leds, s.logger, cw), nil
}

// Update applies patch. A new ledSystem keeps the stored lastActivation,
// which only the dispatcher writes.
func (s *CrosswalkService) Update(ctx context.Context, id string, patch domain.CrosswalkPatch) (*domain.CrosswalkView, error) {
	current, err := s.crosswalks.GetCrosswalk(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Location != nil {
		if err := patch.Location.Validate(); err != nil {
			return nil, err
		}
	}
	if patch.CameraID != nil {
		trimmed := strings.TrimSpace(*patch.CameraID)
		patch.CameraID = &trimmed
		if trimmed != "" {
			if _, err := s.cameras.GetCamera(ctx, trimmed); err != nil {
				return nil, err
			}
		}
	}
	if patch.LEDID != nil {
		trimmed := strings.TrimSpace(*patch.LEDID)
		patch.LEDID = &trimmed
		if trimmed != "" {
			if _, err := s.leds.GetLED(ctx, trimmed); err != nil {
				return nil, err
			}
		}
	}
	if patch.LEDSystem != nil {
		sys := *patch.LEDSystem
		sys.ApplyDefaults()
		if err := sys.Validate(); err != nil {
			return nil, err
		}
		sys.LastActivation = nil
		if current.LEDSystem != nil {
			sys.LastActivation = current.LEDSystem.LastActivation
		}
		patch.LEDSystem = &sys
	}

	cw, err := s.crosswalks.UpdateCrosswalk(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return buildView(ctx, s.cameras, s.leds, s.logger, cw), nil
}

func (s *CrosswalkService) Delete(ctx context.Context, id string) error {
	if err := s.crosswalks.DeleteCrosswalk(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Crosswalk deleted", zap.String("crosswalk_id", id))
	return nil
}

func (s *CrosswalkService) GetStats(ctx context.Context) (*domain.CrosswalkStats, error) {
	n, err := s.crosswalks.CountCrosswalks(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.CrosswalkStats{Total: n}, nil
}

// buildView dereferences camera and LED. A dangling reference is logged and
// left nil rather than failing the read.
func buildView(ctx context.Context, cameras repository.CamerasRepository, leds repository.LEDsRepository, logger *zap.Logger, cw *domain.Crosswalk) *domain.CrosswalkView {
	v := &domain.CrosswalkView{Crosswalk: cw}
	if cw.CameraID != nil {
		c, err := cameras.GetCamera(ctx, *cw.CameraID)
		if err != nil {
			logDanglingRef(logger, cw.ID, "camera", *cw.CameraID, err)
		} else {
			v.Camera = c
		}
	}
	if cw.LEDID != nil {
		l, err := leds.GetLED(ctx, *cw.LEDID)
		if err != nil {
			logDanglingRef(logger, cw.ID, "led", *cw.LEDID, err)
		} else {
			v.LED = l
		}
	}
	return v
}

func logDanglingRef(logger *zap.Logger, crosswalkID, kind, refID string, err error) {
	level := logger.Warn
	if errors.Is(err, domain.ErrNotFound) {
		level = logger.Debug
	}
	level(fmt.Sprintf("Crosswalk %s reference not resolved", kind),
		zap.String("crosswalk_id", crosswalkID),
		zap.String("ref_id", refID),
		zap.Error(err),
	)
}
