package commands

import (
	"context"

	"github.com/rpattn/ngoreports/internal/report"

	"github.com/urfave/cli/v3"
)

// DashboardAction prints the monthly summary. A month without reports
// prints zero totals.
func DashboardAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := report.NewService(appCtx.Stores.Reports, appCtx.Logger).Dashboard(ctx, cmd.String("month"))
	if err != nil {
		return err
	}
	return printJSON(cmd, summary)
}
