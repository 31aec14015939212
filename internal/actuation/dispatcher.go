// Package actuation drives the LED warning controllers attached to
// crosswalks. Every outcome is reported as an ActivationResult; nothing
// escapes the Dispatcher as an error.
package actuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/events"
)

const (
	MsgCrosswalkNotFound   = "crosswalk not found"
	msgNotConfigured       = "LED system not configured"
	msgDeactivateNoURL     = "LED deactivation URL not configured"
	msgActivated           = "LED system activated successfully"
	msgDeactivated         = "LED system deactivated"
	defaultAlertType       = "unknown"
	defaultCommandSeverity = "medium"
	writeBackTimeout       = 3 * time.Second
)

// CrosswalkStore is what the dispatcher needs from the crosswalk repository.
type CrosswalkStore interface {
	GetCrosswalk(ctx context.Context, crosswalkID string) (*domain.Crosswalk, error)
	UpdateLastActivation(ctx context.Context, crosswalkID string, activation domain.LastActivation) error
}

// ActivationContext describes the alert that triggered an activation.
type ActivationContext struct {
	Type     string          `json:"type,omitempty"`
	Severity domain.Severity `json:"severity,omitempty"`
}

type ActivationResult struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	CrosswalkID    string         `json:"crosswalkId"`
	Pattern        domain.Pattern `json:"pattern,omitempty"`
	ResponseTimeMs int64          `json:"responseTimeMs"`
	LEDResponse    any            `json:"ledResponse,omitempty"`
}

type StatusResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	CrosswalkID string `json:"crosswalkId"`
	LEDSystem   any    `json:"ledSystem,omitempty"`
}

// ledCommand is the body (http_post) or query string (http_get) sent to a
// controller.
type ledCommand struct {
	CrosswalkID string         `json:"crosswalkId"`
	Pattern     domain.Pattern `json:"pattern"`
	Color       string         `json:"color"`
	FlashRate   float64        `json:"flashRate"`
	Duration    int            `json:"duration"`
	AlertType   string         `json:"alertType"`
	Severity    string         `json:"severity"`
	Timestamp   string         `json:"timestamp"`
}

func (c ledCommand) query() map[string]string {
	return map[string]string{
		"crosswalkId": c.CrosswalkID,
		"pattern":     string(c.Pattern),
		"color":       c.Color,
		"flashRate":   strconv.FormatFloat(c.FlashRate, 'f', -1, 64),
		"duration":    strconv.Itoa(c.Duration),
		"alertType":   c.AlertType,
		"severity":    c.Severity,
		"timestamp":   c.Timestamp,
	}
}

type deactivateCommand struct {
	CrosswalkID string `json:"crosswalkId"`
	Action      string `json:"action"`
	Timestamp   string `json:"timestamp"`
}

// PatternForSeverity picks the LED pattern for an assessment: critical
// flashes danger, anything else warning.
func PatternForSeverity(s domain.Severity) domain.Pattern {
	if s == domain.SeverityCritical {
		return domain.PatternDanger
	}
	return domain.PatternWarning
}

type Dispatcher struct {
	store  CrosswalkStore
	client *resty.Client
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewDispatcher builds a dispatcher whose outbound calls give up after
// timeout. Calls are never retried. pub may be nil.
func NewDispatcher(store CrosswalkStore, timeout time.Duration, pub events.Publisher, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if pub == nil {
		pub = events.Nop{}
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Dispatcher{store: store, client: client, events: pub, logger: logger, now: time.Now}
}

// Activate sends pattern to the crosswalk's LED controller and records the
// outcome as ledSystem.lastActivation whenever the crosswalk has an LED system.
func (d *Dispatcher) Activate(ctx context.Context, crosswalkID string, pattern domain.Pattern, actx ActivationContext) ActivationResult {
	start := time.Now()
	if pattern == "" {
		pattern = domain.PatternWarning
	}
	res := ActivationResult{CrosswalkID: crosswalkID, Pattern: pattern}

	cw, err := d.store.GetCrosswalk(ctx, crosswalkID)
	if err != nil {
		res.Message = lookupMessage(err)
		res.ResponseTimeMs = time.Since(start).Milliseconds()
		d.logger.Warn("LED activation skipped",
			zap.String("crosswalk_id", crosswalkID),
			zap.String("reason", res.Message),
		)
		return res
	}

	d.dispatch(ctx, cw, pattern, actx, &res)
	res.ResponseTimeMs = time.Since(start).Milliseconds()

	if res.Success {
		d.logger.Info("LED activated",
			zap.String("crosswalk_id", crosswalkID),
			zap.String("pattern", string(pattern)),
			zap.Int64("response_time_ms", res.ResponseTimeMs),
		)
	} else {
		d.logger.Warn("LED activation failed",
			zap.String("crosswalk_id", crosswalkID),
			zap.String("pattern", string(pattern)),
			zap.String("message", res.Message),
			zap.Int64("response_time_ms", res.ResponseTimeMs),
		)
	}

	if cw.LEDSystem != nil {
		d.recordActivation(ctx, res)
	}
	if err := d.events.Publish(ctx, events.New(events.TypeLEDActivation, res)); err != nil {
		d.logger.Warn("Failed to publish LED activation event", zap.Error(err))
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, cw *domain.Crosswalk, pattern domain.Pattern, actx ActivationContext, res *ActivationResult) {
	sys := cw.LEDSystem
	if !configured(sys) {
		res.Message = msgNotConfigured
		return
	}
	if status := effectiveStatus(sys); status != domain.LEDOperational {
		res.Message = fmt.Sprintf("LED system status: %s", status)
		return
	}

	cfg := patternConfig(sys, pattern)
	cmd := ledCommand{
		CrosswalkID: cw.ID,
		Pattern:     pattern,
		Color:       cfg.Color,
		FlashRate:   cfg.FlashRate,
		Duration:    cfg.Duration,
		AlertType:   actx.Type,
		Severity:    string(actx.Severity),
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	if cmd.AlertType == "" {
		cmd.AlertType = defaultAlertType
	}
	if cmd.Severity == "" {
		cmd.Severity = defaultCommandSeverity
	}

	req := d.client.R().SetContext(ctx).SetHeaders(authHeaders(sys.Authentication))

	var (
		resp *resty.Response
		err  error
	)
	switch method := sys.ActivationMethod; method {
	case domain.MethodHTTPPost, "":
		resp, err = req.SetBody(cmd).Post(sys.ControlURL)
	case domain.MethodHTTPGet:
		resp, err = req.SetQueryParams(cmd.query()).Get(sys.ControlURL)
	case domain.MethodMQTT, domain.MethodWebSocket:
		res.Message = fmt.Sprintf("%s activation method not implemented", method)
		return
	default:
		res.Message = fmt.Sprintf("unsupported activation method: %s", method)
		return
	}

	if err != nil {
		res.Message = err.Error()
		return
	}
	res.LEDResponse = decodeBody(resp.Body())
	if !resp.IsSuccess() {
		res.Message = fmt.Sprintf("LED controller responded with status %d", resp.StatusCode())
		return
	}
	res.Success = true
	res.Message = msgActivated
}

// recordActivation runs on a context detached from ctx so a timed out
// dispatch is still recorded. Failures are logged only.
func (d *Dispatcher) recordActivation(ctx context.Context, res ActivationResult) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer cancel()

	err := d.store.UpdateLastActivation(wctx, res.CrosswalkID, domain.LastActivation{
		Timestamp:      d.now().UTC(),
		Pattern:        res.Pattern,
		Success:        res.Success,
		ResponseTimeMs: res.ResponseTimeMs,
	})
	if err != nil {
		d.logger.Error("Failed to record last LED activation",
			zap.String("crosswalk_id", res.CrosswalkID),
			zap.Error(err),
		)
	}
}

// Deactivate posts a deactivation command to ledSystem.deactivateUrl. It does
// not touch lastActivation.
func (d *Dispatcher) Deactivate(ctx context.Context, crosswalkID string) ActivationResult {
	start := time.Now()
	res := ActivationResult{CrosswalkID: crosswalkID}

	cw, err := d.store.GetCrosswalk(ctx, crosswalkID)
	if err != nil {
		res.Message = lookupMessage(err)
		return res
	}
	sys := cw.LEDSystem
	if !configured(sys) {
		res.Message = msgNotConfigured
		return res
	}
	if sys.DeactivateURL == "" {
		res.Message = msgDeactivateNoURL
		return res
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeaders(authHeaders(sys.Authentication)).
		SetBody(deactivateCommand{
			CrosswalkID: cw.ID,
			Action:      "deactivate",
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}).
		Post(sys.DeactivateURL)
	res.ResponseTimeMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		res.Message = err.Error()
	case !resp.IsSuccess():
		res.LEDResponse = decodeBody(resp.Body())
		res.Message = fmt.Sprintf("LED controller responded with status %d", resp.StatusCode())
	default:
		res.LEDResponse = decodeBody(resp.Body())
		res.Success = true
		res.Message = msgDeactivated
	}

	if res.Success {
		d.logger.Info("LED deactivated", zap.String("crosswalk_id", crosswalkID))
	} else {
		d.logger.Warn("LED deactivation failed",
			zap.String("crosswalk_id", crosswalkID),
			zap.String("message", res.Message),
		)
	}
	return res
}

// GetStatus projects the stored LED configuration without contacting the
// controller.
func (d *Dispatcher) GetStatus(ctx context.Context, crosswalkID string) StatusResult {
	cw, err := d.store.GetCrosswalk(ctx, crosswalkID)
	if err != nil {
		return StatusResult{CrosswalkID: crosswalkID, Message: lookupMessage(err)}
	}
	out := StatusResult{Success: true, CrosswalkID: cw.ID}
	if !configured(cw.LEDSystem) {
		out.LEDSystem = map[string]string{"status": "not_configured"}
	} else {
		out.LEDSystem = cw.LEDSystem
	}
	return out
}

func lookupMessage(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return MsgCrosswalkNotFound
	}
	return err.Error()
}

func configured(sys *domain.LEDSystem) bool {
	return sys != nil && sys.ControlURL != ""
}

func effectiveStatus(sys *domain.LEDSystem) domain.LEDStatus {
	if sys.Status == "" {
		return domain.LEDOperational
	}
	return sys.Status
}

// patternConfig falls back to the configured warning pattern, then to the
// built-in warning pattern.
func patternConfig(sys *domain.LEDSystem, p domain.Pattern) domain.PatternConfig {
	if cfg, ok := sys.Patterns[p]; ok {
		return cfg
	}
	if cfg, ok := sys.Patterns[domain.PatternWarning]; ok {
		return cfg
	}
	return domain.DefaultPatterns()[domain.PatternWarning]
}

func authHeaders(auth *domain.LEDAuthentication) map[string]string {
	h := map[string]string{}
	if auth == nil {
		return h
	}
	if auth.APIKey != "" {
		h["X-API-Key"] = auth.APIKey
	}
	if auth.Token != "" {
		h["Authorization"] = "Bearer " + auth.Token
	}
	return h
}

// decodeBody returns the controller's JSON reply, its raw text, or nil.
func decodeBody(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err == nil {
		return v
	}
	return string(b)
}
