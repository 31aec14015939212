package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/actuation"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/service"
)

const crosswalksPrefix = "/api/crosswalks"

// LEDController is the manual LED surface of a crosswalk.
type LEDController interface {
	Activate(ctx context.Context, crosswalkID string, pattern domain.Pattern, actx actuation.ActivationContext) actuation.ActivationResult
	Deactivate(ctx context.Context, crosswalkID string) actuation.ActivationResult
	GetStatus(ctx context.Context, crosswalkID string) actuation.StatusResult
}

type CrosswalksHandler struct {
	crosswalks *service.CrosswalkService
	alerts     *service.AlertService
	leds       LEDController
	logger     *zap.Logger
}

func NewCrosswalksHandler(crosswalks *service.CrosswalkService, alerts *service.AlertService, leds LEDController, logger *zap.Logger) *CrosswalksHandler {
	return &CrosswalksHandler{crosswalks: crosswalks, alerts: alerts, leds: leds, logger: logger}
}

func (h *CrosswalksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, crosswalksPrefix)
	switch {
	case seg == nil:
		notFound(w)
	case len(seg) == 0:
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			methodNotAllowed(w)
		}
	case len(seg) == 1 && seg[0] == "stats":
		onlyMethod(w, r, http.MethodGet, h.Stats)
	case len(seg) == 1:
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, seg[0])
		case http.MethodPatch, http.MethodPut:
			h.Update(w, r, seg[0])
		case http.MethodDelete:
			h.Delete(w, r, seg[0])
		default:
			methodNotAllowed(w)
		}
	case len(seg) == 2 && seg[1] == "alerts":
		onlyMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) { h.Alerts(w, r, seg[0]) })
	case len(seg) == 3 && seg[1] == "alerts" && seg[2] == "stats":
		onlyMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) { h.AlertStats(w, r, seg[0]) })
	case len(seg) == 3 && seg[1] == "led":
		h.serveLED(w, r, seg[0], seg[2])
	default:
		notFound(w)
	}
}

func (h *CrosswalksHandler) serveLED(w http.ResponseWriter, r *http.Request, id, action string) {
	switch action {
	case "activate":
		onlyMethod(w, r, http.MethodPost, func(w http.ResponseWriter, r *http.Request) { h.ActivateLED(w, r, id) })
	case "deactivate":
		onlyMethod(w, r, http.MethodPost, func(w http.ResponseWriter, r *http.Request) { h.DeactivateLED(w, r, id) })
	case "status":
		onlyMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) { h.LEDStatus(w, r, id) })
	default:
		notFound(w)
	}
}

func (h *CrosswalksHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.crosswalks.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "List crosswalks", err)
		return
	}
	writeJSON(w, http.StatusOK, OkList(views))
}

func (h *CrosswalksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCrosswalkRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, "Create crosswalk", err)
		return
	}
	view, err := h.crosswalks.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "Create crosswalk", err)
		return
	}
	res := Ok(view)
	res.ID = view.ID
	writeJSON(w, http.StatusCreated, res)
}

func (h *CrosswalksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.crosswalks.GetStats(r.Context())
	if err != nil {
		writeError(w, h.logger, "Crosswalk stats", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

func (h *CrosswalksHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.crosswalks.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Get crosswalk", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

type crosswalkPatchBody struct {
	Location  *domain.Location  `json:"location"`
	CameraID  *string           `json:"cameraId"`
	LEDID     *string           `json:"ledId"`
	LEDSystem *domain.LEDSystem `json:"ledSystem"`
}

func (h *CrosswalksHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var body crosswalkPatchBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, h.logger, "Update crosswalk", err)
		return
	}
	view, err := h.crosswalks.Update(r.Context(), id, domain.CrosswalkPatch{
		Location:  body.Location,
		CameraID:  body.CameraID,
		LEDID:     body.LEDID,
		LEDSystem: body.LEDSystem,
	})
	if err != nil {
		writeError(w, h.logger, "Update crosswalk", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

func (h *CrosswalksHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.crosswalks.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, "Delete crosswalk", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"message": "crosswalk deleted"}))
}

func (h *CrosswalksHandler) Alerts(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	query := service.AlertQuery{
		SortBy: repository.ParseAlertSort(q.Get("sortBy")),
		Page:   parseInt(q.Get("page"), 1),
		Limit:  parseInt(q.Get("limit"), 0),
	}
	var err error
	if query.DangerLevel, err = parseDangerLevelParam(q.Get("dangerLevel")); err == nil {
		if query.StartDate, err = parseTimeParam("startDate", q.Get("startDate"), false); err == nil {
			query.EndDate, err = parseTimeParam("endDate", q.Get("endDate"), true)
		}
	}
	if err != nil {
		writeError(w, h.logger, "Crosswalk alerts", err)
		return
	}

	page, err := h.alerts.GetAlertsByCrosswalk(r.Context(), id, query)
	if err != nil {
		writeError(w, h.logger, "Crosswalk alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(page))
}

func (h *CrosswalksHandler) AlertStats(w http.ResponseWriter, r *http.Request, id string) {
	st, err := h.alerts.GetCrosswalkStats(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Crosswalk alert stats", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

type activateBody struct {
	Pattern  string                      `json:"pattern"`
	Metadata actuation.ActivationContext `json:"metadata"`
}

func (h *CrosswalksHandler) ActivateLED(w http.ResponseWriter, r *http.Request, id string) {
	var body activateBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, h.logger, "Activate LED", err)
		return
	}
	pattern := domain.PatternWarning
	if body.Pattern != "" {
		p, err := domain.ParsePattern(body.Pattern)
		if err != nil {
			writeError(w, h.logger, "Activate LED", err)
			return
		}
		pattern = p
	}
	res := h.leds.Activate(r.Context(), id, pattern, body.Metadata)
	writeJSON(w, activationStatus(res.Success, res.Message), res)
}

func (h *CrosswalksHandler) DeactivateLED(w http.ResponseWriter, r *http.Request, id string) {
	res := h.leds.Deactivate(r.Context(), id)
	writeJSON(w, activationStatus(res.Success, res.Message), res)
}

func (h *CrosswalksHandler) LEDStatus(w http.ResponseWriter, r *http.Request, id string) {
	res := h.leds.GetStatus(r.Context(), id)
	writeJSON(w, activationStatus(res.Success, res.Message), res)
}

// activationStatus controller failures are reported as 400 with the
// dispatcher message in the body.
func activationStatus(success bool, message string) int {
	switch {
	case success:
		return http.StatusOK
	case message == actuation.MsgCrosswalkNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
