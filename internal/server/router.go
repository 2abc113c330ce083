package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rpattn/ngoreports/internal/ingestion"
	"github.com/rpattn/ngoreports/internal/middleware"
	"github.com/rpattn/ngoreports/internal/report"
	"github.com/rpattn/ngoreports/internal/repository"
	"github.com/rpattn/ngoreports/internal/respond"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	Ingestion      *ingestion.Service
	Reports        *report.Service
	Jobs           repository.JobRepository
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter assembles every route behind CORS and request logging.
func NewRouter(deps Dependencies) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(respond.NotFound)
	r.Use(middleware.JobLoaderMiddleware(deps.Jobs))

	r.HandleFunc("/health", health).Methods(http.MethodGet)
	ingestion.NewHTTPHandler(deps.Ingestion).Register(r)
	report.NewHTTPHandler(deps.Reports).Register(r)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	return corsHandler.Handler(middleware.LoggingMiddleware(deps.Logger)(r))
}

func health(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{
		"status":    respond.StatusSuccess,
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
