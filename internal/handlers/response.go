package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

func respondJSON(w http.ResponseWriter, logger *utils.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, logger *utils.Logger, err error) {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		appErr = utils.NewInternalError("Internal server error", err)
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request error", "status", appErr.StatusCode, "error", appErr.Message, "cause", appErr.Cause)
	} else {
		logger.Warn("Request error", "status", appErr.StatusCode, "error", appErr.Message)
	}

	respondJSON(w, logger, appErr.StatusCode, appErr)
}
