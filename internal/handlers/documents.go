package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/extractor"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/services"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
	"github.com/gorilla/mux"
)

// multipartOverhead is allowed on top of the file limit for form boundaries and headers.
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	service     services.AnalysisService
	logger      *utils.Logger
	maxFileSize int64
}

func NewDocumentHandler(service services.AnalysisService, maxFileSize int64, logger *utils.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:     service,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

func (h *DocumentHandler) sizeLimitError() error {
	return utils.NewBadRequestError(fmt.Sprintf("File size exceeds the %s limit", extractor.FormatSize(h.maxFileSize)))
}

// UploadDocument accepts a multipart "file" and queues it for analysis.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	// Check Content-Length header first to reject oversized requests early
	if r.ContentLength > h.maxFileSize+multipartOverhead {
		respondError(w, h.logger, h.sizeLimitError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondError(w, h.logger, h.sizeLimitError())
			return
		}
		respondError(w, h.logger, utils.NewBadRequestError("Invalid form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(w, h.logger, utils.NewInternalError("Failed to read file", err))
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(w, h.logger, h.sizeLimitError())
		return
	}

	h.logger.Info("File upload attempt",
		"filename", header.Filename,
		"reported_content_type", header.Header.Get("Content-Type"),
		"size", len(data))

	job, err := h.service.SubmitDocument(r.Context(), &models.UploadRequest{
		File:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusAccepted, &models.JobResponse{
		Job:     job,
		Message: "Document accepted. Follow progress at /api/v1/jobs/" + job.ID,
	})
}

// SubmitText queues pasted text for analysis.
func (h *DocumentHandler) SubmitText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	var req models.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondError(w, h.logger, h.sizeLimitError())
			return
		}
		respondError(w, h.logger, utils.NewBadRequestError("Invalid JSON body"))
		return
	}

	job, err := h.service.SubmitText(r.Context(), req.Text)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusAccepted, &models.JobResponse{
		Job:     job,
		Message: "Text accepted. Follow progress at /api/v1/jobs/" + job.ID,
	})
}

func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, job)
}

func (h *DocumentHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.service.CancelJob(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, job)
}

func (h *DocumentHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetResult(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, result)
}

func (h *DocumentHandler) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if !utils.IsValidID(id) {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid job ID"))
		return "", false
	}
	return id, true
}
