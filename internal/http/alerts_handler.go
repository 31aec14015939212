package httpapi

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/service"
)

const (
	alertsPrefix       = "/api/alerts"
	maxMultipartMemory = 10 << 20
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type AlertsHandler struct {
	alerts *service.AlertService
	ingest *service.IngestService
	logger *zap.Logger
}

func NewAlertsHandler(alerts *service.AlertService, ingest *service.IngestService, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{alerts: alerts, ingest: ingest, logger: logger}
}

func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, alertsPrefix)
	switch {
	case seg == nil:
		notFound(w)
	case len(seg) == 0:
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Ingest(w, r)
		default:
			methodNotAllowed(w)
		}
	case len(seg) == 1 && seg[0] == "stats":
		onlyMethod(w, r, http.MethodGet, h.Stats)
	case len(seg) == 1 && seg[0] == "export":
		onlyMethod(w, r, http.MethodGet, h.Export)
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
	default:
		notFound(w)
	}
}

// Ingest accepts the detection report as JSON, or as a form with either a
// "data" JSON field or flat fields.
func (h *AlertsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	req, err := decodeIngestRequest(r)
	if err != nil {
		writeError(w, h.logger, "Ingest alert", err)
		return
	}
	alert, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "Ingest alert", err)
		return
	}
	res := Ok(alert)
	res.ID = alert.ID
	writeJSON(w, http.StatusCreated, res)
}

func decodeIngestRequest(r *http.Request) (service.IngestRequest, error) {
	var req service.IngestRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return req, fmt.Errorf("%w: invalid multipart form: %w", domain.ErrValidation, err)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("%w: invalid form: %w", domain.ErrValidation, err)
		}
	default:
		return req, readBodyJSON(r, maxBodyBytes, &req)
	}

	if data := r.PostFormValue("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			return req, fmt.Errorf("%w: invalid data field: %v", domain.ErrValidation, err)
		}
		return req, nil
	}
	return ingestRequestFromForm(r)
}

func formValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.PostFormValue(k)); v != "" {
			return v
		}
	}
	return ""
}

func ingestRequestFromForm(r *http.Request) (service.IngestRequest, error) {
	req := service.IngestRequest{
		CrosswalkID: formValue(r, "crosswalkId"),
		CameraID:    formValue(r, "cameraId"),
		DangerLevel: formValue(r, "dangerLevel"),
		PhotoURL:    formValue(r, "detectionPhoto[url]", "detectionPhoto.url", "detectionPhotoUrl"),
		Location: domain.Location{
			City:   formValue(r, "location[city]", "location.city"),
			Street: formValue(r, "location[street]", "location.street"),
			Number: formValue(r, "location[number]", "location.number"),
		},
	}
	if v := formValue(r, "confidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: confidence must be a number", domain.ErrValidation)
		}
		req.Confidence = &c
	}
	if v := formValue(r, "detections"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Detections); err != nil {
			return req, fmt.Errorf("%w: detections must be a JSON array", domain.ErrValidation)
		}
	}
	return req, nil
}

func alertFiltersFromQuery(r *http.Request) (repository.AlertFilters, error) {
	q := r.URL.Query()
	var f repository.AlertFilters
	level, err := parseDangerLevelParam(q.Get("dangerLevel"))
	if err != nil {
		return f, err
	}
	f.DangerLevel = level
	if id := strings.TrimSpace(q.Get("crosswalkId")); id != "" {
		f.CrosswalkID = &id
	}
	if f.StartTime, err = parseTimeParam("startDate", q.Get("startDate"), false); err != nil {
		return f, err
	}
	if f.EndTime, err = parseTimeParam("endDate", q.Get("endDate"), true); err != nil {
		return f, err
	}
	return f, nil
}

func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := alertFiltersFromQuery(r)
	if err != nil {
		writeError(w, h.logger, "List alerts", err)
		return
	}
	alerts, err := h.alerts.GetAll(r.Context(), filters)
	if err != nil {
		writeError(w, h.logger, "List alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, OkList(alerts))
}

func (h *AlertsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.alerts.GetStats(r.Context())
	if err != nil {
		writeError(w, h.logger, "Alert stats", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

func (h *AlertsHandler) Export(w http.ResponseWriter, r *http.Request) {
	filters, err := alertFiltersFromQuery(r)
	if err != nil {
		writeError(w, h.logger, "Export alerts", err)
		return
	}
	data, err := h.alerts.ExportXLSX(r.Context(), filters)
	if err != nil {
		writeError(w, h.logger, "Export alerts", err)
		return
	}
	filename := fmt.Sprintf("alerts_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	a, err := h.alerts.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a))
}

type alertPatchBody struct {
	DangerLevel    *domain.DangerLevel    `json:"dangerLevel"`
	DetectionPhoto *domain.DetectionPhoto `json:"detectionPhoto"`
}

func (h *AlertsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var body alertPatchBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, h.logger, "Update alert", err)
		return
	}
	a, err := h.alerts.Update(r.Context(), id, domain.AlertPatch{DangerLevel: body.DangerLevel, DetectionPhoto: body.DetectionPhoto})
	if err != nil {
		writeError(w, h.logger, "Update alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a))
}

func (h *AlertsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.alerts.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, "Delete alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"message": "alert deleted"}))
}
