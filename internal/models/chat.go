package models

import "time"

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	ID        int64     `json:"id" db:"id"`
	JobID     string    `json:"job_id" db:"job_id"`
	Role      ChatRole  `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer   string         `json:"answer"`
	Messages []*ChatMessage `json:"messages"`
}

// ChatbotPayload is the body sent to the analysis service's /chatbot endpoint.
type ChatbotPayload struct {
	Summary          string         `json:"summary"`
	DetailedAnalysis []RemoteClause `json:"detailedAnalysis"`
	KeyEntities      string         `json:"key_entities,omitempty"`
	Question         string         `json:"question"`
}

type LoanComparison struct {
	Comparison    string   `json:"comparison,omitempty"`
	Answer        string   `json:"answer,omitempty"`
	AgreementRate *float64 `json:"agreement_rate,omitempty"`
}

type TextRequest struct {
	Text string `json:"text"`
}
