package router

import (
	"net/http"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/handlers"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/middleware"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/services"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// JobStats reports how many jobs sit in each status.
type JobStats interface {
	Stats() map[models.JobStatus]int
}

type Options struct {
	MaxFileSize    int64
	AllowedOrigins []string
}

func NewRouter(service services.AnalysisService, stats JobStats, opts Options, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	docHandler := handlers.NewDocumentHandler(service, opts.MaxFileSize, logger)
	eventsHandler := handlers.NewEventsHandler(service, opts.AllowedOrigins, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.Health(w, stats, logger)
	}).Methods(http.MethodGet)

	// Submission
	api.HandleFunc("/documents/upload", docHandler.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/text", docHandler.SubmitText).Methods(http.MethodPost)

	// Job tracking
	api.HandleFunc("/jobs/{id}", docHandler.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", docHandler.CancelJob).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/result", docHandler.GetResult).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/events", eventsHandler.StreamJob).Methods(http.MethodGet)

	// Assistant
	api.HandleFunc("/jobs/{id}/chat", docHandler.Transcript).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/chat", docHandler.Ask).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/loan-comparison", docHandler.CompareLoan).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		MaxAge: 300,
	})

	return c.Handler(r)
}
