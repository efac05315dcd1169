package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/coordinator"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
	"github.com/dokzlo13/climated/internal/store"
)

// Response is the envelope around every API reply.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return e.Code + ": " + e.Message
}

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusOK, data, nil)
}

func respondCreated(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusCreated, data, nil)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any, apiErr *APIError) {
	resp := Response{
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	respondJSON(w, r, status, nil, apiErr)
}

func classify(err error) (int, *APIError) {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, &APIError{Code: "validation_error", Message: verr.Error(), Field: verr.Field}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, &APIError{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, schedule.ErrEmptySchedule):
		return http.StatusConflict, &APIError{Code: "empty_schedule", Message: err.Error()}
	case errors.Is(err, store.ErrExists):
		return http.StatusConflict, &APIError{Code: "exists", Message: err.Error()}
	case errors.Is(err, store.ErrProfileInUse):
		return http.StatusConflict, &APIError{Code: "profile_in_use", Message: err.Error()}
	case errors.Is(err, coordinator.ErrGroupInactive):
		return http.StatusConflict, &APIError{Code: "group_inactive", Message: err.Error()}
	case errors.Is(err, resolver.ErrNoFutureNode):
		return http.StatusUnprocessableEntity, &APIError{Code: "no_future_node", Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, &APIError{Code: "not_found", Message: err.Error()}
	default:
		return http.StatusInternalServerError, &APIError{Code: "internal_error", Message: "internal error"}
	}
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into v. An empty body is allowed when optional is set.
func decode(r *http.Request, v any, optional bool) error {
	if r.Body == nil || r.ContentLength == 0 {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: request body is required", errBadRequest)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var verr *schedule.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
