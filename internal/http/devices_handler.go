package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/service"
)

const (
	camerasPrefix = "/api/cameras"
	ledsPrefix    = "/api/leds"
)

type CamerasHandler struct {
	cameras *service.CameraService
	logger  *zap.Logger
}

func NewCamerasHandler(cameras *service.CameraService, logger *zap.Logger) *CamerasHandler {
	return &CamerasHandler{cameras: cameras, logger: logger}
}

type cameraStatusBody struct {
	Status string `json:"status"`
}

func (h *CamerasHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, camerasPrefix)
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
	case len(seg) == 1:
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, seg[0])
		case http.MethodPatch, http.MethodPut:
			h.UpdateStatus(w, r, seg[0])
		case http.MethodDelete:
			h.Delete(w, r, seg[0])
		default:
			methodNotAllowed(w)
		}
	case len(seg) == 2 && seg[1] == "status":
		onlyMethod(w, r, http.MethodPatch, func(w http.ResponseWriter, r *http.Request) { h.UpdateStatus(w, r, seg[0]) })
	default:
		notFound(w)
	}
}

func (h *CamerasHandler) List(w http.ResponseWriter, r *http.Request) {
	cams, err := h.cameras.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "List cameras", err)
		return
	}
	writeJSON(w, http.StatusOK, OkList(cams))
}

func (h *CamerasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body cameraStatusBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, h.logger, "Create camera", err)
		return
	}
	c, err := h.cameras.Create(r.Context(), body.Status)
	if err != nil {
		writeError(w, h.logger, "Create camera", err)
		return
	}
	res := Ok(c)
	res.ID = c.ID
	writeJSON(w, http.StatusCreated, res)
}

func (h *CamerasHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.cameras.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Get camera", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

func (h *CamerasHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body cameraStatusBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, h.logger, "Update camera", err)
		return
	}
	c, err := h.cameras.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		writeError(w, h.logger, "Update camera", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

func (h *CamerasHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.cameras.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, "Delete camera", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"message": "camera deleted"}))
}

type LEDsHandler struct {
	leds   *service.LEDService
	logger *zap.Logger
}

func NewLEDsHandler(leds *service.LEDService, logger *zap.Logger) *LEDsHandler {
	return &LEDsHandler{leds: leds, logger: logger}
}

func (h *LEDsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, ledsPrefix)
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
	case len(seg) == 1:
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, seg[0])
		case http.MethodDelete:
			h.Delete(w, r, seg[0])
		default:
			methodNotAllowed(w)
		}
	default:
		notFound(w)
	}
}

func (h *LEDsHandler) List(w http.ResponseWriter, r *http.Request) {
	leds, err := h.leds.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "List LEDs", err)
		return
	}
	writeJSON(w, http.StatusOK, OkList(leds))
}

func (h *LEDsHandler) Create(w http.ResponseWriter, r *http.Request) {
	l, err := h.leds.Create(r.Context())
	if err != nil {
		writeError(w, h.logger, "Create LED", err)
		return
	}
	res := Ok(l)
	res.ID = l.ID
	writeJSON(w, http.StatusCreated, res)
}

func (h *LEDsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	l, err := h.leds.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Get LED", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(l))
}

func (h *LEDsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.leds.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, "Delete LED", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"message": "LED deleted"}))
}
