package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger().Error("failed to encode JSON response", "error", err)
	}
}

// HandleError writes an AppError with its status code.
func (h *BaseHandler) HandleError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", "type", appErr.Type, "code", appErr.Code, "error", appErr)
	}
	h.WriteJSON(w, status, body)
}

// HandleServiceError maps any service error onto a response. Errors outside
// the AppError taxonomy are reported as internal without leaking their text.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		h.HandleError(w, appErr)
		return
	}
	h.logger().Error("unexpected service error", "error", err)
	h.HandleError(w, internal.NewInternalError("internal server error", err))
}

// DecodeJSON decodes the request body, rejecting unknown fields.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed).WithCause(err)
	}
	return nil
}

func (h *BaseHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return logger.LoggerWrapper()
	}
	return h.Logger
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, internal.NewValidationFieldErrors([]internal.ValidationError{{
			Field:   field,
			Message: field + " must be a date in YYYY-MM-DD format",
			Code:    string(internal.ErrCodeInvalidTravelDates),
		}})
	}
	return t, nil
}
