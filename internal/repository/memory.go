package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

// In-memory repositories, used when the DB is disabled and by service tests.
// They honour the same uniqueness and not-found contracts as the Postgres ones.

type MemoryAlertsRepo struct {
	mu     sync.RWMutex
	alerts map[string]*domain.Alert
	now    func() time.Time
}

func NewMemoryAlertsRepo() *MemoryAlertsRepo {
	return &MemoryAlertsRepo{alerts: map[string]*domain.Alert{}, now: time.Now}
}

var _ AlertsRepository = (*MemoryAlertsRepo)(nil)

func cloneAlert(a *domain.Alert) *domain.Alert {
	c := *a
	if a.CrosswalkID != nil {
		id := *a.CrosswalkID
		c.CrosswalkID = &id
	}
	if a.DetectionPhoto != nil {
		p := *a.DetectionPhoto
		c.DetectionPhoto = &p
	}
	if a.Confidence != nil {
		v := *a.Confidence
		c.Confidence = &v
	}
	c.DetectedObjects = append([]domain.Detection(nil), a.DetectedObjects...)
	return &c
}

func (r *MemoryAlertsRepo) CreateAlert(_ context.Context, in *domain.NewAlert) (*domain.Alert, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	a := &domain.Alert{
		ID:              uuid.NewString(),
		CrosswalkID:     in.CrosswalkID,
		DangerLevel:     in.DangerLevel,
		Type:            in.Type,
		Severity:        in.Severity,
		Confidence:      in.Confidence,
		DetectedObjects: in.DetectedObjects,
		Timestamp:       in.Timestamp,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.PhotoURL != "" {
		a.DetectionPhoto = &domain.DetectionPhoto{URL: in.PhotoURL}
	}

	r.mu.Lock()
	r.alerts[a.ID] = cloneAlert(a)
	r.mu.Unlock()
	return a, nil
}

func (r *MemoryAlertsRepo) GetAlert(_ context.Context, alertID string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[alertID]
	if !ok {
		return nil, notFound("alert", alertID)
	}
	return cloneAlert(a), nil
}

func matchAlert(a *domain.Alert, f AlertFilters) bool {
	if f.DangerLevel != nil && a.DangerLevel != *f.DangerLevel {
		return false
	}
	if f.CrosswalkID != nil && (a.CrosswalkID == nil || *a.CrosswalkID != *f.CrosswalkID) {
		return false
	}
	if f.StartTime != nil && a.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && a.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

func (r *MemoryAlertsRepo) filter(f AlertFilters) []*domain.Alert {
	out := []*domain.Alert{}
	for _, a := range r.alerts {
		if matchAlert(a, f) {
			out = append(out, a)
		}
	}
	return out
}

func sortAlerts(alerts []*domain.Alert, s AlertSort) {
	newer := func(a, b *domain.Alert) bool {
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		switch s {
		case SortOldest:
			return newer(b, a)
		case SortDanger:
			if a.DangerLevel.Rank() != b.DangerLevel.Rank() {
				return a.DangerLevel.Rank() > b.DangerLevel.Rank()
			}
			return newer(a, b)
		default:
			return newer(a, b)
		}
	})
}

func (r *MemoryAlertsRepo) ListAlerts(_ context.Context, filters AlertFilters, s AlertSort, page, size int) ([]*domain.Alert, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.filter(filters)
	sortAlerts(matched, s)
	total := len(matched)

	if size > 0 {
		if page < 1 {
			page = 1
		}
		start := (page - 1) * size
		if start > total {
			start = total
		}
		end := start + size
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	out := make([]*domain.Alert, 0, len(matched))
	for _, a := range matched {
		out = append(out, cloneAlert(a))
	}
	return out, total, nil
}

func (r *MemoryAlertsRepo) UpdateAlert(_ context.Context, alertID string, patch domain.AlertPatch) (*domain.Alert, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, notFound("alert", alertID)
	}
	if patch.DangerLevel != nil {
		a.DangerLevel = *patch.DangerLevel
	}
	if patch.DetectionPhoto != nil {
		if patch.DetectionPhoto.URL == "" {
			a.DetectionPhoto = nil
		} else {
			p := *patch.DetectionPhoto
			a.DetectionPhoto = &p
		}
	}
	a.UpdatedAt = r.now().UTC()
	return cloneAlert(a), nil
}

func (r *MemoryAlertsRepo) DeleteAlert(_ context.Context, alertID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[alertID]; !ok {
		return notFound("alert", alertID)
	}
	delete(r.alerts, alertID)
	return nil
}

func (r *MemoryAlertsRepo) CountAlerts(_ context.Context, filters AlertFilters) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filter(filters)), nil
}

func (r *MemoryAlertsRepo) CountAlertsByDangerLevel(_ context.Context, filters AlertFilters) (map[domain.DangerLevel]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[domain.DangerLevel]int{domain.DangerLow: 0, domain.DangerMedium: 0, domain.DangerHigh: 0}
	for _, a := range r.filter(filters) {
		out[a.DangerLevel]++
	}
	return out, nil
}

// MemoryCrosswalksRepo keys crosswalks by id and by normalized location.
type MemoryCrosswalksRepo struct {
	mu         sync.RWMutex
	crosswalks map[string]*domain.Crosswalk
	byLocation map[domain.Location]string
	now        func() time.Time
}

func NewMemoryCrosswalksRepo() *MemoryCrosswalksRepo {
	return &MemoryCrosswalksRepo{
		crosswalks: map[string]*domain.Crosswalk{},
		byLocation: map[domain.Location]string{},
		now:        time.Now,
	}
}

var _ CrosswalksRepository = (*MemoryCrosswalksRepo)(nil)

func cloneCrosswalk(cw *domain.Crosswalk) *domain.Crosswalk {
	c := *cw
	if cw.CameraID != nil {
		id := *cw.CameraID
		c.CameraID = &id
	}
	if cw.LEDID != nil {
		id := *cw.LEDID
		c.LEDID = &id
	}
	if cw.LEDSystem != nil {
		s := *cw.LEDSystem
		if cw.LEDSystem.Authentication != nil {
			auth := *cw.LEDSystem.Authentication
			s.Authentication = &auth
		}
		if cw.LEDSystem.Patterns != nil {
			s.Patterns = make(map[domain.Pattern]domain.PatternConfig, len(cw.LEDSystem.Patterns))
			for k, v := range cw.LEDSystem.Patterns {
				s.Patterns[k] = v
			}
		}
		if cw.LEDSystem.LastActivation != nil {
			la := *cw.LEDSystem.LastActivation
			s.LastActivation = &la
		}
		c.LEDSystem = &s
	}
	return &c
}

func emptyToNil(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}

func (r *MemoryCrosswalksRepo) GetCrosswalk(_ context.Context, crosswalkID string) (*domain.Crosswalk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cw, ok := r.crosswalks[crosswalkID]
	if !ok {
		return nil, notFound("crosswalk", crosswalkID)
	}
	return cloneCrosswalk(cw), nil
}

func (r *MemoryCrosswalksRepo) GetCrosswalkByLocation(_ context.Context, loc domain.Location) (*domain.Crosswalk, error) {
	loc = loc.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byLocation[loc]
	if !ok {
		return nil, notFound("crosswalk at", loc.City+", "+loc.Street+" "+loc.Number)
	}
	return cloneCrosswalk(r.crosswalks[id]), nil
}

func (r *MemoryCrosswalksRepo) ListCrosswalks(_ context.Context) ([]*domain.Crosswalk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Crosswalk, 0, len(r.crosswalks))
	for _, cw := range r.crosswalks {
		out = append(out, cloneCrosswalk(cw))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryCrosswalksRepo) CreateCrosswalk(_ context.Context, in *domain.Crosswalk) (*domain.Crosswalk, error) {
	loc := in.Location.Normalize()
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byLocation[loc]; taken {
		return nil, fmt.Errorf("%w: crosswalk already exists at %s, %s %s", domain.ErrConflict, loc.City, loc.Street, loc.Number)
	}

	now := r.now().UTC()
	cw := cloneCrosswalk(in)
	cw.ID = uuid.NewString()
	cw.Location = loc
	cw.CameraID = emptyToNil(in.CameraID)
	cw.LEDID = emptyToNil(in.LEDID)
	cw.CreatedAt = now
	cw.UpdatedAt = now

	r.crosswalks[cw.ID] = cw
	r.byLocation[loc] = cw.ID
	return cloneCrosswalk(cw), nil
}

func (r *MemoryCrosswalksRepo) UpdateCrosswalk(_ context.Context, crosswalkID string, patch domain.CrosswalkPatch) (*domain.Crosswalk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cw, ok := r.crosswalks[crosswalkID]
	if !ok {
		return nil, notFound("crosswalk", crosswalkID)
	}
	if patch.Location != nil {
		loc := patch.Location.Normalize()
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		if owner, taken := r.byLocation[loc]; taken && owner != crosswalkID {
			return nil, fmt.Errorf("%w: another crosswalk already exists at this location", domain.ErrConflict)
		}
		delete(r.byLocation, cw.Location)
		cw.Location = loc
		r.byLocation[loc] = crosswalkID
	}
	if patch.CameraID != nil {
		cw.CameraID = emptyToNil(patch.CameraID)
	}
	if patch.LEDID != nil {
		cw.LEDID = emptyToNil(patch.LEDID)
	}
	if patch.LEDSystem != nil {
		cw.LEDSystem = cloneCrosswalk(&domain.Crosswalk{LEDSystem: patch.LEDSystem}).LEDSystem
	}
	cw.UpdatedAt = r.now().UTC()
	return cloneCrosswalk(cw), nil
}

func (r *MemoryCrosswalksRepo) DeleteCrosswalk(_ context.Context, crosswalkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cw, ok := r.crosswalks[crosswalkID]
	if !ok {
		return notFound("crosswalk", crosswalkID)
	}
	delete(r.byLocation, cw.Location)
	delete(r.crosswalks, crosswalkID)
	return nil
}

func (r *MemoryCrosswalksRepo) CountCrosswalks(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.crosswalks), nil
}

func (r *MemoryCrosswalksRepo) UpdateLastActivation(_ context.Context, crosswalkID string, activation domain.LastActivation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cw, ok := r.crosswalks[crosswalkID]
	if !ok {
		return notFound("crosswalk", crosswalkID)
	}
	if cw.LEDSystem == nil {
		return nil
	}
	la := activation
	cw.LEDSystem.LastActivation = &la
	cw.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryCrosswalksRepo) IsCameraLinked(_ context.Context, cameraID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cw := range r.crosswalks {
		if cw.CameraID != nil && *cw.CameraID == cameraID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCrosswalksRepo) IsLEDLinked(_ context.Context, ledID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cw := range r.crosswalks {
		if cw.LEDID != nil && *cw.LEDID == ledID {
			return true, nil
		}
	}
	return false, nil
}

type MemoryCamerasRepo struct {
	mu      sync.RWMutex
	cameras map[string]*domain.Camera
}

func NewMemoryCamerasRepo() *MemoryCamerasRepo {
	return &MemoryCamerasRepo{cameras: map[string]*domain.Camera{}}
}

var _ CamerasRepository = (*MemoryCamerasRepo)(nil)

func (r *MemoryCamerasRepo) CreateCamera(_ context.Context, status domain.CameraStatus) (*domain.Camera, error) {
	now := time.Now().UTC()
	c := &domain.Camera{ID: uuid.NewString(), Status: status, CreatedAt: now, UpdatedAt: now}
	r.mu.Lock()
	r.cameras[c.ID] = c
	r.mu.Unlock()
	out := *c
	return &out, nil
}

func (r *MemoryCamerasRepo) GetCamera(_ context.Context, cameraID string) (*domain.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cameras[cameraID]
	if !ok {
		return nil, notFound("camera", cameraID)
	}
	out := *c
	return &out, nil
}

func (r *MemoryCamerasRepo) ListCameras(_ context.Context) ([]*domain.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Camera, 0, len(r.cameras))
	for _, c := range r.cameras {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCamerasRepo) UpdateCameraStatus(_ context.Context, cameraID string, status domain.CameraStatus) (*domain.Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cameras[cameraID]
	if !ok {
		return nil, notFound("camera", cameraID)
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}

func (r *MemoryCamerasRepo) DeleteCamera(_ context.Context, cameraID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cameras[cameraID]; !ok {
		return notFound("camera", cameraID)
	}
	delete(r.cameras, cameraID)
	return nil
}

type MemoryLEDsRepo struct {
	mu   sync.RWMutex
	leds map[string]*domain.LED
}

func NewMemoryLEDsRepo() *MemoryLEDsRepo {
	return &MemoryLEDsRepo{leds: map[string]*domain.LED{}}
}

var _ LEDsRepository = (*MemoryLEDsRepo)(nil)

func (r *MemoryLEDsRepo) CreateLED(_ context.Context) (*domain.LED, error) {
	now := time.Now().UTC()
	l := &domain.LED{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	r.mu.Lock()
	r.leds[l.ID] = l
	r.mu.Unlock()
	out := *l
	return &out, nil
}

func (r *MemoryLEDsRepo) GetLED(_ context.Context, ledID string) (*domain.LED, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.leds[ledID]
	if !ok {
		return nil, notFound("LED", ledID)
	}
	out := *l
	return &out, nil
}

func (r *MemoryLEDsRepo) ListLEDs(_ context.Context) ([]*domain.LED, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.LED, 0, len(r.leds))
	for _, l := range r.leds {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryLEDsRepo) DeleteLED(_ context.Context, ledID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leds[ledID]; !ok {
		return notFound("LED", ledID)
	}
	delete(r.leds, ledID)
	return nil
}
