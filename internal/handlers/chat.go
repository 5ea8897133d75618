package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

const maxQuestionBytes = 64 << 10

func (h *DocumentHandler) Ask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid JSON body"))
		return
	}

	resp, err := h.service.Ask(r.Context(), id, req.Question)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}

func (h *DocumentHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	messages, err := h.service.Transcript(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (h *DocumentHandler) CompareLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	comparison, err := h.service.CompareLoan(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, comparison)
}
