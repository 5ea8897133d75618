package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/analyzer"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/extractor"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/pipeline"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/repository"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

// Pipeline is the part of pipeline.Manager the service drives.
type Pipeline interface {
	Submit(ctx context.Context, req *models.UploadRequest) (*models.Job, error)
	SubmitText(ctx context.Context, text string) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Result(ctx context.Context, id string) (*models.AnalysisResult, error)
	Subscribe(ctx context.Context, id string) (<-chan *models.Job, func(), error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
}

type AnalysisService interface {
	SubmitDocument(ctx context.Context, req *models.UploadRequest) (*models.Job, error)
	SubmitText(ctx context.Context, text string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetResult(ctx context.Context, id string) (*models.AnalysisResult, error)
	CancelJob(ctx context.Context, id string) (*models.Job, error)
	Subscribe(ctx context.Context, id string) (<-chan *models.Job, func(), error)

	Ask(ctx context.Context, id, question string) (*models.ChatResponse, error)
	Transcript(ctx context.Context, id string) ([]*models.ChatMessage, error)
	CompareLoan(ctx context.Context, id string) (*models.LoanComparison, error)
}

type analysisService struct {
	pipeline Pipeline
	repo     repository.Repository
	analyzer analyzer.Analyzer
	logger   *utils.Logger
}

func NewService(p Pipeline, repo repository.Repository, az analyzer.Analyzer, logger *utils.Logger) AnalysisService {
	return &analysisService{
		pipeline: p,
		repo:     repo,
		analyzer: az,
		logger:   logger,
	}
}

func (s *analysisService) SubmitDocument(ctx context.Context, req *models.UploadRequest) (*models.Job, error) {
	job, err := s.pipeline.Submit(ctx, req)
	if err != nil {
		s.logger.Warn("Upload rejected", "filename", req.Filename, "size", len(req.File), "error", err)
		return nil, toAppError(err)
	}
	return job, nil
}

func (s *analysisService) SubmitText(ctx context.Context, text string) (*models.Job, error) {
	job, err := s.pipeline.SubmitText(ctx, text)
	if err != nil {
		s.logger.Warn("Text submission rejected", "length", len(text), "error", err)
		return nil, toAppError(err)
	}
	return job, nil
}

func (s *analysisService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.pipeline.Get(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	return job, nil
}

func (s *analysisService) GetResult(ctx context.Context, id string) (*models.AnalysisResult, error) {
	result, err := s.pipeline.Result(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	return result, nil
}

func (s *analysisService) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.pipeline.Cancel(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Info("Job cancellation handled", "job_id", id, "status", job.Status)
	return job, nil
}

func (s *analysisService) Subscribe(ctx context.Context, id string) (<-chan *models.Job, func(), error) {
	ch, stop, err := s.pipeline.Subscribe(ctx, id)
	if err != nil {
		return nil, nil, toAppError(err)
	}
	return ch, stop, nil
}

// toAppError maps pipeline, extractor and analyzer errors onto client facing errors.
func toAppError(err error) error {
	if _, ok := utils.AsAppError(err); ok {
		return err
	}

	var jobErr *pipeline.JobError
	var statusErr *analyzer.StatusError

	switch {
	case errors.Is(err, extractor.ErrEmptyFile),
		errors.Is(err, extractor.ErrFileTooLarge),
		errors.Is(err, extractor.ErrUnsupportedType),
		errors.Is(err, extractor.ErrNotPDF),
		errors.Is(err, pipeline.ErrEmptyText):
		return utils.NewBadRequestError(err.Error())
	case errors.Is(err, pipeline.ErrJobNotFound):
		return utils.NewNotFoundError("Job not found")
	case errors.Is(err, pipeline.ErrJobRunning):
		return utils.NewConflictError("Analysis is still in progress")
	case errors.Is(err, pipeline.ErrJobFinished):
		return utils.NewConflictError("Job has already finished")
	case errors.As(err, &jobErr):
		if jobErr.Status == models.JobStatusCancelled {
			return utils.NewConflictError("Analysis was cancelled")
		}
		return utils.NewProcessingError(fmt.Sprintf("Analysis failed: %s", jobErr.Message), err)
	case errors.As(err, &statusErr):
		msg := "Analysis service request failed"
		if statusErr.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, statusErr.Message)
		}
		return utils.NewUpstreamError(msg, err)
	case errors.Is(err, analyzer.ErrEmptyResponse):
		return utils.NewUpstreamError("Analysis service returned an empty response", err)
	case errors.Is(err, pipeline.ErrShuttingDown):
		return utils.NewInternalError("Server is shutting down", err)
	default:
		return utils.NewInternalError("Internal server error", err)
	}
}
