package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

// Result is the envelope of every JSON response.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	ID      string `json:"id,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

func OkList[T any](items []T) Result {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	return Result{Success: true, Data: items, Count: &n}
}

func Fail(message string) Result {
	return Result{Success: false, Error: message}
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain sentinels to status codes. Internal errors are
// logged and not echoed to the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
		writeJSON(w, status, Fail("internal server error"))
		return
	}
	logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, Fail(err.Error()))
}
