package commands

import (
	"github.com/urfave/cli/v3"
)

// NewRootCommand returns the ngoctl command tree.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "ngoctl",
		Usage: "operate the NGO report store without the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "directory holding config.yaml and .env",
				Value: ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply pending schema migrations",
				Action: MigrateAction,
			},
			{
				Name:  "ingest",
				Usage: "ingest a CSV or XLSX file and wait for the job to finish",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "path to the report file",
						Required: true,
					},
				},
				Action: IngestAction,
			},
			{
				Name:  "job",
				Usage: "show an ingestion job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "job id",
						Required: true,
					},
				},
				Action: JobAction,
			},
			{
				Name:  "dashboard",
				Usage: "show the summary for a month",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "month",
						Usage:    "month as YYYY-MM",
						Required: true,
					},
				},
				Action: DashboardAction,
			},
		},
	}
}
