package app

import (
	"log/slog"

	"github.com/rpattn/ngoreports/internal/config"
	"github.com/rpattn/ngoreports/internal/ingestion"
	"github.com/rpattn/ngoreports/internal/report"
)

// Services bundles the application services built on top of Stores.
type Services struct {
	Dispatcher *ingestion.Dispatcher
	Ingestion  *ingestion.Service
	Reports    *report.Service
}

// NewServices builds the ingestion pipeline, its dispatcher and the report
// service from configuration.
func NewServices(cfg config.Config, stores *Stores, logger *slog.Logger) *Services {
	pipeline := ingestion.NewPipeline(stores.Jobs, stores.Reports,
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithLogger(logger),
	)
	dispatcher := ingestion.NewDispatcher(pipeline, stores.Jobs,
		ingestion.WithMaxConcurrentJobs(cfg.Ingestion.MaxConcurrentJobs),
		ingestion.WithDispatcherLogger(logger),
	)
	return &Services{
		Dispatcher: dispatcher,
		Ingestion: ingestion.NewService(stores.Jobs, dispatcher,
			ingestion.WithUploadDirectory(cfg.Uploads.Dir),
			ingestion.WithMaxUploadBytes(cfg.Uploads.MaxBytes),
			ingestion.WithServiceLogger(logger),
		),
		Reports: report.NewService(stores.Reports, logger),
	}
}
