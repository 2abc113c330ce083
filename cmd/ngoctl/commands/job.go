package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/ngoreports/internal/repository"

	"github.com/urfave/cli/v3"
)

// JobAction prints a single ingestion job.
func JobAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := appCtx.Stores.Jobs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return printJSON(cmd, job)
}
