package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/report"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

// Ask forwards a question about a finished analysis to the chat endpoint and
// records both sides of the exchange.
func (s *analysisService) Ask(ctx context.Context, id, question string) (*models.ChatResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, utils.NewBadRequestError("Question cannot be empty")
	}

	result, err := s.pipeline.Result(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}

	payload := &models.ChatbotPayload{
		Summary:          report.PlainSummary(result.Summary),
		DetailedAnalysis: detailedAnalysis(result),
		Question:         question,
	}
	if result.Raw != nil {
		payload.KeyEntities = result.Raw.KeyEntities
	}

	answer, err := s.analyzer.Chat(ctx, payload)
	if err != nil {
		s.logger.Error("Chat request failed", "job_id", id, "error", err)
		return nil, upstreamError("Chat request failed", err)
	}

	now := time.Now().UTC()
	for _, msg := range []*models.ChatMessage{
		{JobID: id, Role: models.ChatRoleUser, Content: question, CreatedAt: now},
		{JobID: id, Role: models.ChatRoleAssistant, Content: answer, CreatedAt: now},
	} {
		if err := s.repo.AppendChatMessage(ctx, msg); err != nil {
			s.logger.Error("Failed to store chat message", "job_id", id, "error", err)
			return nil, utils.NewInternalError("Failed to store chat message", err)
		}
	}

	messages, err := s.repo.ListChatMessages(ctx, id)
	if err != nil {
		return nil, utils.NewInternalError("Failed to load chat transcript", err)
	}

	s.logger.Info("Chat answered", "job_id", id, "question_length", len(question), "answer_length", len(answer))

	return &models.ChatResponse{Answer: answer, Messages: messages}, nil
}

func (s *analysisService) Transcript(ctx context.Context, id string) ([]*models.ChatMessage, error) {
	if _, err := s.pipeline.Get(ctx, id); err != nil {
		return nil, toAppError(err)
	}

	messages, err := s.repo.ListChatMessages(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load chat transcript", "job_id", id, "error", err)
		return nil, utils.NewInternalError("Failed to load chat transcript", err)
	}
	return messages, nil
}

// CompareLoan asks the service to compare the agreement's terms with market
// rates, attaching the interest rate found in the summary when there is one.
func (s *analysisService) CompareLoan(ctx context.Context, id string) (*models.LoanComparison, error) {
	result, err := s.pipeline.Result(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}

	comparison, err := s.analyzer.CompareLoan(ctx, result.Summary)
	if err != nil {
		s.logger.Error("Loan comparison failed", "job_id", id, "error", err)
		return nil, upstreamError("Loan comparison failed", err)
	}

	if rate, ok := report.InterestRate(result.Summary); ok {
		comparison.AgreementRate = &rate
	}
	return comparison, nil
}

// detailedAnalysis returns the clause list in the service's own shape.
func detailedAnalysis(result *models.AnalysisResult) []models.RemoteClause {
	if result.Raw != nil {
		return result.Raw.DetailedAnalysis
	}

	clauses := make([]models.RemoteClause, 0, len(result.Clauses))
	for _, c := range result.Clauses {
		clauses = append(clauses, models.RemoteClause{
			OriginalClause: c.OriginalText,
			Analysis: models.RemoteClauseDetail{
				RiskLevel:        c.RiskLevel,
				RiskExplanation:  c.Explanation,
				ActionableAdvice: c.Advice,
				ClauseCategory:   c.Category,
			},
		})
	}
	return clauses
}

func upstreamError(msg string, err error) error {
	if errors.Is(err, context.Canceled) {
		return utils.NewInternalError("Request cancelled", err)
	}
	appErr, ok := toAppError(err).(*utils.AppError)
	if ok && appErr.Type == utils.ErrorTypeUpstream {
		return appErr
	}
	return utils.NewUpstreamError(msg, err)
}
