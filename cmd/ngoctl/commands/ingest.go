package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rpattn/ngoreports/internal/app"

	"github.com/urfave/cli/v3"
)

// IngestAction stages the file through the ingestion service, waits for
// the job to reach a terminal state and prints it. The source file is
// copied, so it is left in place.
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	services := app.NewServices(appCtx.Config, appCtx.Stores, appCtx.Logger)
	job, err := services.Ingestion.Submit(ctx, path, file)
	if err != nil {
		return fmt.Errorf("failed to submit %s: %w", path, err)
	}

	if err := services.Dispatcher.Wait(ctx); err != nil {
		return fmt.Errorf("interrupted while job %s was running: %w", job.JobID, err)
	}

	done, err := services.Ingestion.GetJob(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", job.JobID, err)
	}
	return printJSON(cmd, done)
}
