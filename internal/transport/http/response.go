package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"popsies-quiz-service/internal/domain"
	"popsies-quiz-service/internal/logging"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusClientClosedRequest is the non-standard status used when the caller
// went away before the operation finished.
const statusClientClosedRequest = 499

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeCancelled:
		return statusClientClosedRequest
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorPayloadFor(err error) errorBody {
	switch code := domain.CodeOf(err); code {
	case domain.CodeTimeout:
		return errorBody{Code: code, Message: "deadline exceeded"}
	case domain.CodeCancelled:
		return errorBody{Code: code, Message: "request cancelled"}
	}
	if domain.KindOf(err) == domain.KindInfrastructure {
		return errorBody{Code: domain.CodeOf(err), Message: "internal error"}
	}
	return errorBody{Code: domain.CodeOf(err), Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context(), logger).Warn("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		logging.FromContext(r.Context(), logger).Error("request failed", zap.Error(err))
	}
	writeJSON(w, r, logger, status, errorPayloadFor(err))
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
