package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
)

// CameraService rejects deleting cameras still linked to a crosswalk.
type CameraService struct {
	cameras    repository.CamerasRepository
	crosswalks repository.CrosswalksRepository
	logger     *zap.Logger
}

func NewCameraService(cameras repository.CamerasRepository, crosswalks repository.CrosswalksRepository, logger *zap.Logger) *CameraService {
	return &CameraService{cameras: cameras, crosswalks: crosswalks, logger: logger}
}

// Create status defaults to active.
func (s *CameraService) Create(ctx context.Context, status string) (*domain.Camera, error) {
	st, err := domain.ParseCameraStatus(status)
	if err != nil {
		return nil, err
	}
	c, err := s.cameras.CreateCamera(ctx, st)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Camera created", zap.String("camera_id", c.ID))
	return c, nil
}

func (s *CameraService) List(ctx context.Context) ([]*domain.Camera, error) {
	return s.cameras.ListCameras(ctx)
}

func (s *CameraService) Get(ctx context.Context, id string) (*domain.Camera, error) {
	return s.cameras.GetCamera(ctx, id)
}

func (s *CameraService) UpdateStatus(ctx context.Context, id, status string) (*domain.Camera, error) {
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", domain.ErrValidation)
	}
	st, err := domain.ParseCameraStatus(status)
	if err != nil {
		return nil, err
	}
	return s.cameras.UpdateCameraStatus(ctx, id, st)
}

func (s *CameraService) Delete(ctx context.Context, id string) error {
	linked, err := s.crosswalks.IsCameraLinked(ctx, id)
	if err != nil {
		return err
	}
	if linked {
		return fmt.Errorf("%w: camera %s is linked to a crosswalk", domain.ErrInUse, id)
	}
	return s.cameras.DeleteCamera(ctx, id)
}

// LEDService rejects deleting LEDs still linked to a crosswalk.
type LEDService struct {
	leds       repository.LEDsRepository
	crosswalks repository.CrosswalksRepository
	logger     *zap.Logger
}

func NewLEDService(leds repository.LEDsRepository, crosswalks repository.CrosswalksRepository, logger *zap.Logger) *LEDService {
	return &LEDService{leds: leds, crosswalks: crosswalks, logger: logger}
}

func (s *LEDService) Create(ctx context.Context) (*domain.LED, error) {
	l, err := s.leds.CreateLED(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("LED created", zap.String("led_id", l.ID))
	return l, nil
}

func (s *LEDService) List(ctx context.Context) ([]*domain.LED, error) {
	return s.leds.ListLEDs(ctx)
}

func (s *LEDService) Get(ctx context.Context, id string) (*domain.LED, error) {
	return s.leds.GetLED(ctx, id)
}

func (s *LEDService) Delete(ctx context.Context, id string) error {
	linked, err := s.crosswalks.IsLEDLinked(ctx, id)
	if err != nil {
		return err
	}
	if linked {
		return fmt.Errorf("%w: LED %s is linked to a crosswalk", domain.ErrInUse, id)
	}
	return s.leds.DeleteLED(ctx, id)
}
