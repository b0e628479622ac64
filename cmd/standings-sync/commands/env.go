package commands

import (
	"context"
	"log/slog"
	"os"
	"standings-sync/internal/feed"
	"standings-sync/internal/telemetry"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type environment struct {
	runtime   *feed.Runtime
	providers telemetry.Providers
	tel       telemetry.API
}

// setup loads the config and opens everything the commands share.
func setup(ctx context.Context) (environment, error) {
	cfg, err := feed.Load(*configPath)
	if err != nil {
		return environment{}, err
	}

	providers, err := telemetry.SetupOtlp(ctx, "standings-sync", cfg.Otlp)
	if err != nil {
		return environment{}, err
	}
	tel, err := telemetry.NewMeteredAPI(telemetry.SlogAPI{})
	if err != nil {
		return environment{}, err
	}

	var transcripts telemetry.TranscriptOutput
	if *dumpHTTP != "" {
		output, err := telemetry.NewFilesystemOutput(*dumpHTTP)
		if err != nil {
			return environment{}, err
		}
		transcripts = output
	}

	runtime, err := feed.Open(cfg, tel, transcripts)
	if err != nil {
		return environment{}, err
	}
	return environment{
		runtime:   runtime,
		providers: providers,
		tel:       tel,
	}, nil
}

func (e environment) Close() {
	err := e.runtime.Close()
	if err != nil {
		slog.Warn("failed to close runtime", "err", err)
	}

	// the run context may already be cancelled, still flush telemetry
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = e.providers.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
