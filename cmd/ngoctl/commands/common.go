package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rpattn/ngoreports/internal/app"
	"github.com/rpattn/ngoreports/internal/config"
	"github.com/rpattn/ngoreports/internal/logger"

	"github.com/urfave/cli/v3"
)

// AppContext holds the resources a command works with.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
	Stores *app.Stores
}

// NewAppContext loads configuration from the --config directory and opens
// the configured stores. Logs go to the command's error writer so stdout
// stays machine readable.
func NewAppContext(ctx context.Context, cmd *cli.Command) (*AppContext, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg := logger.NewWithWriter(cfg.Log, errWriter(cmd))

	stores, err := app.OpenStores(ctx, cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return &AppContext{Config: cfg, Logger: logg, Stores: stores}, nil
}

// Close releases the stores.
func (ac *AppContext) Close() {
	if ac.Stores != nil {
		ac.Stores.Close()
	}
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(outWriter(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
