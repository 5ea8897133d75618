package pipeline

import "github.com/BerylCAtieno/legal-doc-analyzer/internal/models"

// stageSpan is the slice of overall progress a status covers.
type stageSpan struct {
	start float64
	end   float64
	label string
}

var stages = map[models.JobStatus]stageSpan{
	models.JobStatusQueued:      {0, 0, "Waiting to start"},
	models.JobStatusUploading:   {0, 10, "Uploading document"},
	models.JobStatusExtracting:  {10, 40, "Extracting text"},
	models.JobStatusAnalyzing:   {40, 85, "Analyzing clauses"},
	models.JobStatusSummarizing: {85, 95, "Summarizing findings"},
	models.JobStatusFinalizing:  {95, 100, "Preparing results"},
	models.JobStatusComplete:    {100, 100, "Analysis complete"},
	models.JobStatusFailed:      {0, 0, "Analysis failed"},
	models.JobStatusCancelled:   {0, 0, "Analysis cancelled"},
}

// maxRunningProgress caps overall progress for every status but complete.
const maxRunningProgress = 99

// overallProgress maps a stage-local percentage onto the overall 0-100 scale.
func overallProgress(status models.JobStatus, stagePct float64) float64 {
	span, ok := stages[status]
	if !ok {
		return 0
	}
	stagePct = clamp(stagePct, 0, 100)
	return span.start + (span.end-span.start)*stagePct/100
}

func stageLabel(status models.JobStatus) string {
	if span, ok := stages[status]; ok {
		return span.label
	}
	return string(status)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
