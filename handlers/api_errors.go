package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/editor"
	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/store"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Errorf("Error encoding JSON response: %v", err)
		}
	}
}

// decodeJSON reads a JSON request body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_request_body", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps an error from the gateway or the editor session to
// an API error. Unexpected errors are logged and reported as internal.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, gateway.ErrNotFound),
		errors.Is(err, editor.ErrUnknownImage),
		errors.Is(err, store.ErrUnknownEntity):
		WriteAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, gateway.ErrInvalidInput):
		WriteAPIError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, store.ErrNoActiveImage):
		WriteAPIError(w, http.StatusConflict, "no_active_image", "No image is being edited")
	case errors.Is(err, context.DeadlineExceeded):
		WriteAPIError(w, http.StatusGatewayTimeout, "timeout", action+" timed out")
	default:
		log.Errorf("Error during %s: %v", action, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to "+action)
	}
}
