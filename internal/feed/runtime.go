package feed

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"standings-sync/internal/assert"
	"standings-sync/internal/chrono"
	"standings-sync/internal/detect"
	"standings-sync/internal/fetch"
	"standings-sync/internal/locate"
	"standings-sync/internal/marker"
	"standings-sync/internal/notify"
	"standings-sync/internal/pipeline"
	"standings-sync/internal/publish"
	"standings-sync/internal/remote"
	"standings-sync/internal/telemetry"

	"github.com/go-resty/resty/v2"
)

// Runtime holds the resources shared by every feed of a config and builds
// the pipeline of each feed out of them.
type Runtime struct {
	cfg         Config
	time        chrono.StandardTime
	tel         telemetry.API
	metrics     telemetry.SyncMetrics
	transcripts telemetry.TranscriptOutput
	browser     locate.Browser
	db          *sql.DB
	store       remote.Store
}

// Open prepares a runtime for cfg. transcripts may be nil.
func Open(cfg Config, tel telemetry.API, transcripts telemetry.TranscriptOutput) (*Runtime, error) {
	assert.NotNil(tel, "tel")

	clock, err := chrono.NewStandardTime(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewSyncMetrics()
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:         cfg,
		time:        clock,
		tel:         tel,
		metrics:     metrics,
		transcripts: transcripts,
		browser:     locate.NewBrowser(cfg.Browser, tel),
	}

	if cfg.StateDB != "" {
		r.db, err = marker.OpenDB(cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("open state db %s: %w", cfg.StateDB, err)
		}
	}

	switch {
	case cfg.RemoteRoot != "":
		r.store = remote.NewDirStore(cfg.RemoteRoot)
	case cfg.FTP.Host != "":
		r.store = remote.NewFTPStore(cfg.FTP, cfg.Retry.Policy().Timeout, tel)
	}
	return r, nil
}

func (r *Runtime) Config() Config {
	return r.cfg
}

func (r *Runtime) Time() chrono.StandardTime {
	return r.time
}

// DB is nil unless a state db is configured.
func (r *Runtime) DB() *sql.DB {
	return r.db
}

func (r *Runtime) Close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

func (r *Runtime) client() *resty.Client {
	client := resty.New()
	telemetry.InstrumentResty(client, r.tel, r.transcripts)
	return client
}

// Marker returns the marker store of f.
func (r *Runtime) Marker(f Feed) marker.Store {
	if r.db != nil {
		return marker.NewSQLiteStore(r.db, f.Name, r.time)
	}
	return marker.NewFileStore(f.MarkerPath(r.cfg.DownloadDir))
}

// Locator builds the strategy that finds the artifact url of f.
func (r *Runtime) Locator(f Feed) (locate.Locator, error) {
	var source locate.PageSource = locate.NewHTTPPage(r.client(), r.cfg.Retry.Policy().Timeout)
	if f.Source.Render {
		source = r.browser
	}

	switch f.Source.Kind {
	case SourceStatic:
		return locate.Static{URL: f.Source.URL}, nil
	case SourceAnchor:
		return locate.NewAnchor(f.Source.URL, f.Source.BaseURL, source, r.tel), nil
	case SourceExportButton:
		return locate.NewExportButton(f.Source.URL, f.Source.BaseURL, source, r.tel), nil
	case SourcePopup:
		return locate.NewPopup(f.Source.URL, r.browser, r.tel), nil
	}
	return nil, fmt.Errorf("feed %s: unknown source kind %q", f.Name, f.Source.Kind)
}

// Detector builds the change detector of f, store is only used by the
// content policy.
func (r *Runtime) Detector(f Feed, store remote.Store) detect.Detector {
	policy := f.Policy()
	if policy != detect.PolicyContent {
		return detect.IdentityDetector{Policy: policy}
	}

	alias := pipeline.AliasName(f.Extension)
	var previous detect.PreviousCopy = detect.RemoteAlias{
		Store: store,
		Dir:   f.RemoteDir,
		Name:  alias,
	}
	if f.CompareLocal {
		previous = detect.LocalCopy{Path: filepath.Join(f.LocalDir(r.cfg.DownloadDir), alias)}
	}
	return detect.NewContentDetector(previous, r.tel)
}

func (r *Runtime) notifier(f Feed) notify.Notifier {
	return notify.NewNotifier(notify.Options{
		From:          r.cfg.SMTP.From,
		To:            notify.ParseRecipients(r.cfg.SMTP.To),
		Title:         f.Title,
		PublicBaseURL: f.PublicBaseURL,
	}, notify.NewSMTPTransport(r.cfg.SMTP.Transport()), r.tel)
}

// Pipeline wires every component of f together.
func (r *Runtime) Pipeline(f Feed) (pipeline.Pipeline, error) {
	err := r.cfg.ValidateTransport()
	if err != nil {
		return pipeline.Pipeline{}, err
	}
	locator, err := r.Locator(f)
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	policy := r.cfg.Retry.Policy()
	markers := r.Marker(f)
	fetcher := fetch.NewFetcher(r.client(), policy, r.tel).
		WithAttemptCounter(r.metrics.FetchAttempts)
	publisher := publish.NewPublisher(publish.Options{
		LocalDir:  f.LocalDir(r.cfg.DownloadDir),
		RemoteDir: f.RemoteDir,
		Policy:    policy,
	}, r.store, markers, r.tel)

	return pipeline.New(pipeline.Options{
		Feed:      f.Name,
		Policy:    f.Policy(),
		Extension: f.Extension,
		DryRun:    r.cfg.DryRun,
	}, pipeline.Deps{
		Locator:   locator,
		Fetcher:   fetcher,
		Detector:  r.Detector(f, r.store),
		Markers:   markers,
		Publisher: publisher,
		Notifier:  r.notifier(f),
		Time:      r.time,
		Metrics:   r.metrics,
		Tel:       r.tel,
	}), nil
}
