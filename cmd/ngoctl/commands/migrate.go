package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// MigrateAction opens the configured stores, which applies any pending
// migrations, and exits.
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	fmt.Fprintf(outWriter(cmd), "migrations applied (%s)\n", appCtx.Config.Storage.Driver)
	return nil
}
