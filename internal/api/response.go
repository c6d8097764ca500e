package api

import (
	"encoding/json"
	"net/http"

	"voting_api_gateway/internal/apperrors"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, apiResponse{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindGone:
		return http.StatusGone
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError maps an error kind to its HTTP status. Internal errors never
// leak their cause; kinded errors surface their core message.
func writeAppError(w http.ResponseWriter, err error, fallback string) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		writeError(w, http.StatusInternalServerError, fallback)
		return
	}
	writeError(w, statusForKind(kind), apperrors.MessageOf(err))
}

// writeVotingError is writeAppError with the conflict message collapsed to a
// single phrase. The two duplicate causes (credential vs fingerprint) are not
// distinguished to the voter, to avoid leaking identity correlation.
func writeVotingError(w http.ResponseWriter, err error, fallback string) {
	if apperrors.KindOf(err) == apperrors.KindConflict {
		writeError(w, http.StatusConflict, "You have already voted")
		return
	}
	writeAppError(w, err, fallback)
}
