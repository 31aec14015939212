package actuation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/events"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
)

type capturedRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    map[string]any
}

// ledController records every request and replies with status.
func ledController(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Headers: r.Header.Clone()}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&c.Body)
		}
		mu.Lock()
		reqs = append(reqs, c)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func newCrosswalk(t *testing.T, repo *repository.MemoryCrosswalksRepo, sys *domain.LEDSystem) string {
	t.Helper()
	if sys != nil {
		sys.ApplyDefaults()
	}
	cw, err := repo.CreateCrosswalk(context.Background(), &domain.Crosswalk{
		Location:  domain.Location{City: "Tel Aviv", Street: "Dizengoff", Number: "50"},
		LEDSystem: sys,
	})
	require.NoError(t, err)
	return cw.ID
}

func lastActivation(t *testing.T, repo *repository.MemoryCrosswalksRepo, id string) *domain.LastActivation {
	t.Helper()
	cw, err := repo.GetCrosswalk(context.Background(), id)
	require.NoError(t, err)
	if cw.LEDSystem == nil {
		return nil
	}
	return cw.LEDSystem.LastActivation
}

func TestPatternForSeverity(t *testing.T) {
	assert.Equal(t, domain.PatternDanger, PatternForSeverity(domain.SeverityCritical))
	assert.Equal(t, domain.PatternWarning, PatternForSeverity(domain.SeverityHigh))
	assert.Equal(t, domain.PatternWarning, PatternForSeverity(domain.SeverityMedium))
	assert.Equal(t, domain.PatternWarning, PatternForSeverity(""))
}

func TestActivate_HTTPPostSendsPayloadAndAuth(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		ControlURL:     srv.URL + "/activate",
		Authentication: &domain.LEDAuthentication{APIKey: "k-123", Token: "tok"},
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternDanger,
		ActivationContext{Type: domain.AssessmentPedestrianVehicleClose, Severity: domain.SeverityCritical})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "LED system activated successfully", res.Message)
	assert.Equal(t, domain.PatternDanger, res.Pattern)
	assert.Equal(t, map[string]any{"ok": true}, res.LEDResponse)

	reqs := requests()
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/activate", r.Path)
	assert.Equal(t, "k-123", r.Headers.Get("X-API-Key"))
	assert.Equal(t, "Bearer tok", r.Headers.Get("Authorization"))
	assert.Equal(t, id, r.Body["crosswalkId"])
	assert.Equal(t, "danger", r.Body["pattern"])
	assert.Equal(t, "red", r.Body["color"])
	assert.Equal(t, float64(4), r.Body["flashRate"])
	assert.Equal(t, float64(15), r.Body["duration"])
	assert.Equal(t, "pedestrian_vehicle_close", r.Body["alertType"])
	assert.Equal(t, "critical", r.Body["severity"])
	_, err := time.Parse(time.RFC3339, r.Body["timestamp"].(string))
	assert.NoError(t, err)

	la := lastActivation(t, repo, id)
	require.NotNil(t, la)
	assert.True(t, la.Success)
	assert.Equal(t, domain.PatternDanger, la.Pattern)
}

func TestActivate_HTTPGetUsesQueryAndDefaults(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		ControlURL:       srv.URL,
		ActivationMethod: domain.MethodHTTPGet,
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, "", ActivationContext{})
	require.True(t, res.Success, res.Message)

	reqs := requests()
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "warning", q.Get("pattern"))
	assert.Equal(t, "yellow", q.Get("color"))
	assert.Equal(t, "2", q.Get("flashRate"))
	assert.Equal(t, "10", q.Get("duration"))
	assert.Equal(t, "unknown", q.Get("alertType"))
	assert.Equal(t, "medium", q.Get("severity"))
	assert.Empty(t, reqs[0].Headers.Get("X-API-Key"))
}

func TestActivate_MissingPatternFallsBackToWarning(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		ControlURL: srv.URL,
		Patterns: map[domain.Pattern]domain.PatternConfig{
			domain.PatternWarning: {Color: "amber", FlashRate: 1.5, Duration: 7},
		},
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternDanger, ActivationContext{})
	require.True(t, res.Success)

	body := requests()[0].Body
	assert.Equal(t, "danger", body["pattern"])
	assert.Equal(t, "amber", body["color"])
	assert.Equal(t, 1.5, body["flashRate"])
}

func TestActivate_MalfunctionRecordsFailure(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{ControlURL: srv.URL, Status: domain.LEDMalfunction})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})

	assert.False(t, res.Success)
	assert.Equal(t, "LED system status: malfunction", res.Message)
	assert.Empty(t, requests())

	la := lastActivation(t, repo, id)
	require.NotNil(t, la)
	assert.False(t, la.Success)
	assert.Equal(t, domain.PatternWarning, la.Pattern)
}

func TestActivate_MQTTNotImplemented(t *testing.T) {
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		ControlURL:       "http://controller.invalid/activate",
		ActivationMethod: domain.MethodMQTT,
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})

	assert.False(t, res.Success)
	assert.Equal(t, "mqtt activation method not implemented", res.Message)
	la := lastActivation(t, repo, id)
	require.NotNil(t, la)
	assert.False(t, la.Success)
}

func TestActivate_UnsupportedMethod(t *testing.T) {
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		ControlURL:       "http://controller.invalid/activate",
		ActivationMethod: "carrier_pigeon",
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "unsupported activation method: carrier_pigeon", res.Message)
}

func TestActivate_NotConfiguredAndNotFound(t *testing.T) {
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, nil)
	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())

	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "LED system not configured", res.Message)
	assert.Nil(t, lastActivation(t, repo, id))

	st := d.GetStatus(context.Background(), id)
	assert.True(t, st.Success)
	assert.Equal(t, map[string]string{"status": "not_configured"}, st.LEDSystem)

	res = d.Activate(context.Background(), "missing", domain.PatternWarning, ActivationContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "crosswalk not found", res.Message)
}

func TestActivate_Non2xxIsFailure(t *testing.T) {
	srv, _ := ledController(t, http.StatusInternalServerError)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{ControlURL: srv.URL})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "LED controller responded with status 500", res.Message)
	assert.False(t, lastActivation(t, repo, id).Success)
}

func TestActivate_TimeoutStillWritesBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{ControlURL: srv.URL})

	d := NewDispatcher(repo, 50*time.Millisecond, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.GreaterOrEqual(t, res.ResponseTimeMs, int64(40))

	la := lastActivation(t, repo, id)
	require.NotNil(t, la)
	assert.False(t, la.Success)
	assert.Equal(t, res.ResponseTimeMs, la.ResponseTimeMs)
}

type failingWriteBack struct {
	*repository.MemoryCrosswalksRepo
}

func (failingWriteBack) UpdateLastActivation(context.Context, string, domain.LastActivation) error {
	return errors.New("db down")
}

func TestActivate_WriteBackFailureDoesNotChangeResult(t *testing.T) {
	srv, _ := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{ControlURL: srv.URL})

	d := NewDispatcher(failingWriteBack{repo}, time.Second, nil, zap.NewNop())
	res := d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})
	assert.True(t, res.Success)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestActivate_PublishesActivationEvent(t *testing.T) {
	srv, _ := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{ControlURL: srv.URL})

	rec := &eventRecorder{}
	d := NewDispatcher(repo, time.Second, rec, zap.NewNop())
	d.Activate(context.Background(), id, domain.PatternWarning, ActivationContext{})

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.TypeLEDActivation, rec.events[0].Type)
	res, ok := rec.events[0].Data.(ActivationResult)
	require.True(t, ok)
	assert.Equal(t, id, res.CrosswalkID)
}

func TestDeactivate(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		ControlURL:     srv.URL + "/activate",
		DeactivateURL:  srv.URL + "/off",
		Authentication: &domain.LEDAuthentication{APIKey: "k"},
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Deactivate(context.Background(), id)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "LED system deactivated", res.Message)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/off", reqs[0].Path)
	assert.Equal(t, "deactivate", reqs[0].Body["action"])
	assert.Equal(t, id, reqs[0].Body["crosswalkId"])
	assert.Equal(t, "k", reqs[0].Headers.Get("X-API-Key"))

	assert.Nil(t, lastActivation(t, repo, id))
}

func TestDeactivate_RequiresExplicitURL(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{ControlURL: srv.URL + "/activate"})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Deactivate(context.Background(), id)
	assert.False(t, res.Success)
	assert.Equal(t, "LED deactivation URL not configured", res.Message)
	assert.Empty(t, requests())
}

func TestGetStatus(t *testing.T) {
	repo := repository.NewMemoryCrosswalksRepo()
	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())

	bare := newCrosswalk(t, repo, nil)
	st := d.GetStatus(context.Background(), bare)
	assert.True(t, st.Success)
	assert.Equal(t, map[string]string{"status": "not_configured"}, st.LEDSystem)

	st = d.GetStatus(context.Background(), "missing")
	assert.False(t, st.Success)
	assert.Equal(t, "crosswalk not found", st.Message)
}

func TestDeactivate_RequiresControlURL(t *testing.T) {
	srv, requests := ledController(t, http.StatusOK)
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{DeactivateURL: srv.URL + "/off"})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	res := d.Deactivate(context.Background(), id)
	assert.False(t, res.Success)
	assert.Equal(t, "LED system not configured", res.Message)
	assert.Empty(t, requests())
}

func TestGetStatus_EmptyControlURLIsNotConfigured(t *testing.T) {
	repo := repository.NewMemoryCrosswalksRepo()
	id := newCrosswalk(t, repo, &domain.LEDSystem{
		LastActivation: &domain.LastActivation{Pattern: domain.PatternWarning},
	})

	d := NewDispatcher(repo, time.Second, nil, zap.NewNop())
	st := d.GetStatus(context.Background(), id)
	assert.True(t, st.Success)
	assert.Equal(t, map[string]string{"status": "not_configured"}, st.LEDSystem)
}
