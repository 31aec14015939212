package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/store"
)

type testRepos struct {
	alerts     *repository.MemoryAlertsRepo
	crosswalks *repository.MemoryCrosswalksRepo
	cameras    *repository.MemoryCamerasRepo
	leds       *repository.MemoryLEDsRepo
}

func newTestRepos() testRepos {
	return testRepos{
		alerts:     repository.NewMemoryAlertsRepo(),
		crosswalks: repository.NewMemoryCrosswalksRepo(),
		cameras:    repository.NewMemoryCamerasRepo(),
		leds:       repository.NewMemoryLEDsRepo(),
	}
}

func (r testRepos) resolver(lock LocationLocker) *CrosswalkResolver {
	return NewCrosswalkResolver(r.crosswalks, r.cameras, r.leds, lock, zap.NewNop())
}

func (r testRepos) camera(t *testing.T) string {
	t.Helper()
	c, err := r.cameras.CreateCamera(context.Background(), domain.CameraActive)
	require.NoError(t, err)
	return c.ID
}

var testLocation = domain.Location{City: "X", Street: "Y", Number: "1"}

func TestResolver_Idempotent(t *testing.T) {
	repos := newTestRepos()
	res := repos.resolver(nil)
	ctx := context.Background()

	first, err := res.FindOrCreateByLocationAndCamera(ctx, testLocation, "")
	require.NoError(t, err)
	second, err := res.FindOrCreateByLocationAndCamera(ctx, domain.Location{City: " X", Street: "Y ", Number: "1"}, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	n, err := repos.crosswalks.CountCrosswalks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResolver_RejectsIncompleteLocation(t *testing.T) {
	res := newTestRepos().resolver(nil)
	_, err := res.FindOrCreateByLocationAndCamera(context.Background(), domain.Location{City: "X", Street: "Y"}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolver_CreatesWithCameraAndDereferences(t *testing.T) {
	repos := newTestRepos()
	cam := repos.camera(t)

	view, err := repos.resolver(nil).FindOrCreateByLocationAndCamera(context.Background(), testLocation, cam)
	require.NoError(t, err)
	require.NotNil(t, view.CameraID)
	assert.Equal(t, cam, *view.CameraID)
	require.NotNil(t, view.Camera)
	assert.Equal(t, domain.CameraActive, view.Camera.Status)
	assert.Nil(t, view.LED)
}

func TestResolver_UnknownCamera(t *testing.T) {
	repos := newTestRepos()
	_, err := repos.resolver(nil).FindOrCreateByLocationAndCamera(context.Background(), testLocation, "no-such-camera")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, _ := repos.crosswalks.CountCrosswalks(context.Background())
	assert.Equal(t, 0, n)
}

func TestResolver_RelinksCamera(t *testing.T) {
	repos := newTestRepos()
	res := repos.resolver(nil)
	ctx := context.Background()
	camA, camB := repos.camera(t), repos.camera(t)

	first, err := res.FindOrCreateByLocationAndCamera(ctx, testLocation, camA)
	require.NoError(t, err)

	second, err := res.FindOrCreateByLocationAndCamera(ctx, testLocation, camB)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, testLocation, second.Location)
	require.NotNil(t, second.CameraID)
	assert.Equal(t, camB, *second.CameraID)

	// No camera given leaves the link untouched.
	third, err := res.FindOrCreateByLocationAndCamera(ctx, testLocation, "")
	require.NoError(t, err)
	assert.Equal(t, camB, *third.CameraID)

	_, err = res.FindOrCreateByLocationAndCamera(ctx, testLocation, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolver_ConcurrentCallsCreateOnce(t *testing.T) {
	repos := newTestRepos()
	res := repos.resolver(nil)

	const callers = 20
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := res.FindOrCreateByLocationAndCamera(context.Background(), testLocation, "")
			if assert.NoError(t, err) {
				ids[i] = v.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	n, _ := repos.crosswalks.CountCrosswalks(context.Background())
	assert.Equal(t, 1, n)
}

// racingCrosswalks simulates another replica winning the insert.
type racingCrosswalks struct {
	*repository.MemoryCrosswalksRepo
	raced bool
}

func (r *racingCrosswalks) CreateCrosswalk(ctx context.Context, in *domain.Crosswalk) (*domain.Crosswalk, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.MemoryCrosswalksRepo.CreateCrosswalk(ctx, &domain.Crosswalk{Location: in.Location}); err != nil {
			return nil, err
		}
	}
	return r.MemoryCrosswalksRepo.CreateCrosswalk(ctx, in)
}

func TestResolver_ConflictRetriesAsLookup(t *testing.T) {
	repos := newTestRepos()
	racing := &racingCrosswalks{MemoryCrosswalksRepo: repos.crosswalks}
	res := NewCrosswalkResolver(racing, repos.cameras, repos.leds, nil, zap.NewNop())

	view, err := res.FindOrCreateByLocationAndCamera(context.Background(), testLocation, "")
	require.NoError(t, err)
	assert.True(t, racing.raced)

	existing, err := repos.crosswalks.GetCrosswalkByLocation(context.Background(), testLocation)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, view.ID)
}

type failingLock struct{}

func (failingLock) Acquire(context.Context, string) (func(), error) {
	return nil, store.ErrLockTimeout
}

func TestResolver_LockFailureDegrades(t *testing.T) {
	repos := newTestRepos()
	view, err := repos.resolver(failingLock{}).FindOrCreateByLocationAndCamera(context.Background(), testLocation, "")
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
}

func TestResolver_WithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	lock := store.NewLocationLock(store.NewRedisKV(client), 2*time.Second)

	repos := newTestRepos()
	res := repos.resolver(lock)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := res.FindOrCreateByLocationAndCamera(context.Background(), testLocation, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, _ := repos.crosswalks.CountCrosswalks(context.Background())
	assert.Equal(t, 1, n)
	assert.Empty(t, mr.Keys(), "lock keys should be released")
}
