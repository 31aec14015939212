package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/actuation"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/events"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/tasks"
)

// inlineTasks runs submitted work synchronously.
type inlineTasks struct {
	names  []string
	errors []error
	reject bool
}

func (r *inlineTasks) Submit(name string, fn tasks.Func) bool {
	if r.reject {
		return false
	}
	r.names = append(r.names, name)
	r.errors = append(r.errors, fn(context.Background()))
	return true
}

type activation struct {
	crosswalkID string
	pattern     domain.Pattern
	actx        actuation.ActivationContext
}

type fakeActivator struct {
	calls  []activation
	result actuation.ActivationResult
}

func (f *fakeActivator) Activate(_ context.Context, crosswalkID string, pattern domain.Pattern, actx actuation.ActivationContext) actuation.ActivationResult {
	f.calls = append(f.calls, activation{crosswalkID, pattern, actx})
	return f.result
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type ingestFixture struct {
	repos     testRepos
	svc       *IngestService
	activator *fakeActivator
	tasks     *inlineTasks
	pub       *recordingPublisher
}

func newIngestFixture() *ingestFixture {
	repos := newTestRepos()
	f := &ingestFixture{
		repos:     repos,
		activator: &fakeActivator{result: actuation.ActivationResult{Success: true}},
		tasks:     &inlineTasks{},
		pub:       &recordingPublisher{},
	}
	f.svc = NewIngestService(
		repos.resolver(nil),
		repos.crosswalks,
		newTestAlertService(repos),
		f.activator,
		f.tasks,
		f.pub,
		zap.NewNop(),
	)
	return f
}

func TestIngest_ChildAtLocation(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()

	alert, err := f.svc.Ingest(ctx, IngestRequest{
		Location:   testLocation,
		Detections: []domain.RawDetection{{Class: "child", Confidence: 0.8}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DangerHigh, alert.DangerLevel)
	assert.Equal(t, domain.AssessmentChildDetected, alert.Type)
	assert.Equal(t, domain.SeverityHigh, alert.Severity)
	require.NotNil(t, alert.Confidence)
	assert.InDelta(t, 0.8, *alert.Confidence, 1e-9)
	require.Len(t, alert.DetectedObjects, 1)
	assert.Equal(t, domain.CategoryChild, alert.DetectedObjects[0].Class)

	cw, err := f.repos.crosswalks.GetCrosswalkByLocation(ctx, testLocation)
	require.NoError(t, err)
	require.NotNil(t, alert.CrosswalkID)
	assert.Equal(t, cw.ID, *alert.CrosswalkID)

	require.Len(t, f.activator.calls, 1)
	assert.Equal(t, cw.ID, f.activator.calls[0].crosswalkID)
	assert.Equal(t, domain.PatternWarning, f.activator.calls[0].pattern)
	assert.Equal(t, domain.AssessmentChildDetected, f.activator.calls[0].actx.Type)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TypeAlertCreated, f.pub.events[0].Type)
}

func TestIngest_CriticalUsesDangerPattern(t *testing.T) {
	f := newIngestFixture()
	_, err := f.svc.Ingest(context.Background(), IngestRequest{
		Location: testLocation,
		Detections: []domain.RawDetection{
			{Class: "person", Confidence: 0.9},
			{Type: "car", Confidence: 0.7},
		},
	})
	require.NoError(t, err)
	require.Len(t, f.activator.calls, 1)
	assert.Equal(t, domain.PatternDanger, f.activator.calls[0].pattern)
	assert.Equal(t, domain.SeverityCritical, f.activator.calls[0].actx.Severity)
}

func TestIngest_PhotoAndServerTimestamp(t *testing.T) {
	f := newIngestFixture()
	stamp := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	f.svc.now = func() time.Time { return stamp }

	alert, err := f.svc.Ingest(context.Background(), IngestRequest{
		DangerLevel:    "LOW",
		DetectionPhoto: &domain.DetectionPhoto{URL: " https://cdn/nested.jpg "},
		PhotoURL:       "https://cdn/flat.jpg",
	})
	require.NoError(t, err)
	require.NotNil(t, alert.DetectionPhoto)
	assert.Equal(t, "https://cdn/nested.jpg", alert.DetectionPhoto.URL)
	assert.True(t, stamp.Equal(alert.Timestamp))

	alert, err = f.svc.Ingest(context.Background(), IngestRequest{
		DangerLevel:    "LOW",
		DetectionPhoto: &domain.DetectionPhoto{},
		PhotoURL:       "https://cdn/flat.jpg",
	})
	require.NoError(t, err)
	require.NotNil(t, alert.DetectionPhoto)
	assert.Equal(t, "https://cdn/flat.jpg", alert.DetectionPhoto.URL)
}

func TestIngest_UnknownCrosswalkID(t *testing.T) {
	f := newIngestFixture()
	_, err := f.svc.Ingest(context.Background(), IngestRequest{CrosswalkID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.tasks.names)
}

func TestIngest_ExplicitCrosswalkID(t *testing.T) {
	f := newIngestFixture()
	cw := newTestCrosswalk(t, f.repos, testLocation)

	alert, err := f.svc.Ingest(context.Background(), IngestRequest{CrosswalkID: cw, DangerLevel: "low"})
	require.NoError(t, err)
	assert.Equal(t, cw, *alert.CrosswalkID)
	assert.Equal(t, domain.DangerLow, alert.DangerLevel)
	assert.Empty(t, f.activator.calls)
}

func TestIngest_DangerLevelPrecedence(t *testing.T) {
	child := []domain.RawDetection{{Class: "child", Confidence: 0.5}}
	low, high := 0.2, 0.9

	cases := []struct {
		name string
		req  IngestRequest
		want domain.DangerLevel
	}{
		{"explicit wins", IngestRequest{DangerLevel: "LOW", Confidence: &high, Detections: child}, domain.DangerLow},
		{"confidence over assessment", IngestRequest{Confidence: &low, Detections: child}, domain.DangerLow},
		{"assessment", IngestRequest{Detections: child}, domain.DangerHigh},
		{"default", IngestRequest{}, domain.DangerMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newIngestFixture()
			alert, err := f.svc.Ingest(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, alert.DangerLevel)
		})
	}
}

func TestIngest_Validation(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	tooHigh := 1.5

	_, err := f.svc.Ingest(ctx, IngestRequest{DangerLevel: "SEVERE"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Ingest(ctx, IngestRequest{Confidence: &tooHigh})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Ingest(ctx, IngestRequest{Detections: []domain.RawDetection{{Class: "car", Confidence: -0.1}}})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "detections[0]")

	n, _ := f.repos.alerts.CountAlerts(ctx, repository.AlertFilters{})
	assert.Equal(t, 0, n)
}

func TestIngest_ResolverFailureLeavesAlertUnlinked(t *testing.T) {
	f := newIngestFixture()
	alert, err := f.svc.Ingest(context.Background(), IngestRequest{
		Location:   testLocation,
		CameraID:   "ghost-camera",
		Detections: []domain.RawDetection{{Class: "child", Confidence: 0.9}},
	})
	require.NoError(t, err)
	assert.Nil(t, alert.CrosswalkID)
	assert.Empty(t, f.activator.calls, "no crosswalk, nothing to activate")
}

func TestIngest_ActivationFailureDoesNotFailIngest(t *testing.T) {
	f := newIngestFixture()
	f.activator.result = actuation.ActivationResult{Success: false, Message: "LED system not configured"}

	alert, err := f.svc.Ingest(context.Background(), IngestRequest{
		Location:   testLocation,
		Detections: []domain.RawDetection{{Class: "child", Confidence: 0.9}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)

	require.Len(t, f.tasks.errors, 2)
	assert.Error(t, f.tasks.errors[0])
	assert.Contains(t, f.tasks.errors[0].Error(), "LED system not configured")
	assert.NoError(t, f.tasks.errors[1])
}

func TestIngest_QueueFullStillStoresAlert(t *testing.T) {
	f := newIngestFixture()
	f.tasks.reject = true

	alert, err := f.svc.Ingest(context.Background(), IngestRequest{
		Location:   testLocation,
		Detections: []domain.RawDetection{{Class: "child", Confidence: 0.9}},
	})
	require.NoError(t, err)
	_, err = f.repos.alerts.GetAlert(context.Background(), alert.ID)
	assert.NoError(t, err)
	assert.Empty(t, f.activator.calls)
}

func TestIngest_WithRunner(t *testing.T) {
	repos := newTestRepos()
	runner := tasks.NewRunner(2, 8, 0, zap.NewNop())
	activator := &fakeActivator{result: actuation.ActivationResult{Success: false, Message: "boom"}}
	svc := NewIngestService(repos.resolver(nil), repos.crosswalks, newTestAlertService(repos), activator, runner, nil, zap.NewNop())

	_, err := svc.Ingest(context.Background(), IngestRequest{
		Location:   testLocation,
		Detections: []domain.RawDetection{{Class: "child", Confidence: 0.9}},
	})
	require.NoError(t, err)
	require.NoError(t, runner.Shutdown(2 * time.Second))

	st := runner.Stats()
	assert.Equal(t, int64(2), st.Submitted)
	assert.Equal(t, int64(1), st.Failed)
	assert.Equal(t, int64(1), st.Succeeded)
}
