// Package report turns the analysis service's raw JSON into the shape the
// results view renders: normalised clause risks, parsed key entities and
// clean flowchart markup.
package report

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
)

// DefaultFlowchart is rendered when the service produced no usable diagram.
const DefaultFlowchart = "graph TD;\n    A[Flowchart unavailable];"

var (
	entityLine   = regexp.MustCompile(`^\s*[*\-•]\s*(?:\*\*)?([^:*]+?)(?:\*\*)?\s*:\s*(.+?)\s*$`)
	boldKeyLine  = regexp.MustCompile(`^\*\*(.*?)\*\*\s*[:\-]*\s*(.*)$`)
	interestRate = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%.*interest`)
)

// Build converts a remote analysis into an AnalysisResult for jobID.
func Build(jobID string, raw *models.RemoteAnalysis, now time.Time) *models.AnalysisResult {
	result := &models.AnalysisResult{
		JobID:          jobID,
		Summary:        strings.TrimSpace(raw.Summary),
		Clauses:        make([]models.Clause, 0, len(raw.DetailedAnalysis)),
		Flowchart:      CleanFlowchart(raw.Flowchart),
		KeyEntities:    ParseKeyEntities(raw.KeyEntities),
		SalaryAnalysis: raw.SalaryAnalysis,
		RiskCounts: map[models.Risk]int{
			models.RiskSafe:    0,
			models.RiskNeutral: 0,
			models.RiskRisky:   0,
		},
		GeneratedAt: now,
		Raw:         raw,
	}

	for _, item := range raw.DetailedAnalysis {
		risk := ClassifyRisk(item.Analysis.RiskLevel)
		result.Clauses = append(result.Clauses, models.Clause{
			Category:     strings.TrimSpace(item.Analysis.ClauseCategory),
			RiskLevel:    strings.TrimSpace(item.Analysis.RiskLevel),
			Risk:         risk,
			Explanation:  strings.TrimSpace(item.Analysis.RiskExplanation),
			Advice:       strings.TrimSpace(item.Analysis.ActionableAdvice),
			OriginalText: strings.TrimSpace(item.OriginalClause),
		})
		result.RiskCounts[risk]++
	}

	result.OverallRisk = overallRisk(result.RiskCounts)
	return result
}

// ClassifyRisk maps the service's traffic-light levels onto UI buckets.
// Unknown levels are treated as risky.
func ClassifyRisk(level string) models.Risk {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "green":
		return models.RiskSafe
	case "yellow", "neutral":
		return models.RiskNeutral
	default:
		return models.RiskRisky
	}
}

func overallRisk(counts map[models.Risk]int) models.Risk {
	switch {
	case counts[models.RiskRisky] > 0:
		return models.RiskRisky
	case counts[models.RiskNeutral] > 0:
		return models.RiskNeutral
	default:
		return models.RiskSafe
	}
}

// ParseKeyEntities reads "* Label: Value" bullets. Lines that are not bullets are ignored.
func ParseKeyEntities(text string) []models.KeyEntity {
	var entities []models.KeyEntity
	for _, line := range strings.Split(text, "\n") {
		m := entityLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		entities = append(entities, models.KeyEntity{
			Label: strings.TrimSpace(m[1]),
			Value: strings.TrimSpace(strings.TrimLeft(m[2], "* ")),
		})
	}
	return entities
}

// CleanFlowchart strips markdown code fences around Mermaid markup.
func CleanFlowchart(markup string) string {
	code := strings.TrimSpace(markup)
	if code == "" {
		return DefaultFlowchart
	}

	if strings.HasPrefix(code, "```") {
		if nl := strings.IndexByte(code, '\n'); nl >= 0 {
			code = code[nl+1:]
		} else {
			code = strings.TrimPrefix(code, "```mermaid")
		}
	}
	code = strings.TrimSuffix(strings.TrimSpace(code), "```")

	code = strings.TrimSpace(code)
	if code == "" {
		return DefaultFlowchart
	}
	return code
}

// PlainSummary rewrites "**Key:** Value" markdown lines to "Key: Value" and drops blank lines.
func PlainSummary(summary string) string {
	var lines []string
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := boldKeyLine.FindStringSubmatch(line); m != nil {
			key := strings.TrimSuffix(strings.TrimSpace(m[1]), ":")
			line = key + ": " + strings.TrimSpace(m[2])
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// InterestRate finds the first "<n>% ... interest" figure in a summary.
func InterestRate(summary string) (float64, bool) {
	m := interestRate.FindStringSubmatch(summary)
	if m == nil {
		return 0, false
	}
	rate, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return rate, true
}
