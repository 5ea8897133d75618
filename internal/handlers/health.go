package handlers

import (
	"net/http"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

type jobStats interface {
	Stats() map[models.JobStatus]int
}

// Health reports liveness with a count of jobs held in memory.
func Health(w http.ResponseWriter, stats jobStats, logger *utils.Logger) {
	counts := stats.Stats()
	active := 0
	for status, n := range counts {
		if !status.IsTerminal() {
			active += n
		}
	}

	respondJSON(w, logger, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"active_jobs": active,
		"jobs":        counts,
	})
}
