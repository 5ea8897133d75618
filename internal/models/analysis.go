package models

import "time"

// RemoteAnalysis mirrors the JSON returned by the analysis service's /analyze endpoint.
type RemoteAnalysis struct {
	KeyEntities      string                 `json:"key_entities"`
	Summary          string                 `json:"summary"`
	DetailedAnalysis []RemoteClause         `json:"detailed_analysis"`
	Flowchart        string                 `json:"flowchart"`
	SalaryAnalysis   map[string]interface{} `json:"salary_analysis,omitempty"`
}

type RemoteClause struct {
	OriginalClause string             `json:"original_clause"`
	Analysis       RemoteClauseDetail `json:"analysis"`
}

type RemoteClauseDetail struct {
	RiskLevel        string `json:"risk_level"`
	RiskExplanation  string `json:"risk_explanation"`
	ActionableAdvice string `json:"actionable_advice"`
	ClauseCategory   string `json:"clause_category"`
}

// Risk is the three-way bucket the UI colours clauses by.
type Risk string

const (
	RiskSafe    Risk = "safe"
	RiskNeutral Risk = "neutral"
	RiskRisky   Risk = "risky"
)

type Clause struct {
	Category     string `json:"category"`
	RiskLevel    string `json:"risk_level"`
	Risk         Risk   `json:"risk"`
	Explanation  string `json:"explanation"`
	Advice       string `json:"advice"`
	OriginalText string `json:"original_text"`
}

type KeyEntity struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// AnalysisResult is what the rendering layer consumes.
type AnalysisResult struct {
	JobID          string                 `json:"job_id"`
	Summary        string                 `json:"summary"`
	Clauses        []Clause               `json:"clauses"`
	Flowchart      string                 `json:"flowchart,omitempty"`
	KeyEntities    []KeyEntity            `json:"key_entities,omitempty"`
	SalaryAnalysis map[string]interface{} `json:"salary_analysis,omitempty"`
	RiskCounts     map[Risk]int           `json:"risk_counts"`
	OverallRisk    Risk                   `json:"overall_risk"`
	GeneratedAt    time.Time              `json:"generated_at"`

	// Raw is kept so chat requests can forward the analysis context unchanged.
	Raw *RemoteAnalysis `json:"-"`
}
