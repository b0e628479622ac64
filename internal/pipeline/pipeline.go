package pipeline

import (
	"context"
	"fmt"
	"standings-sync/internal/assert"
	"standings-sync/internal/chrono"
	"standings-sync/internal/detect"
	"standings-sync/internal/locate"
	"standings-sync/internal/marker"
	"standings-sync/internal/publish"
	"standings-sync/internal/telemetry"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_run          = "run"
	report_replay_check = "replay-check"
)

var tracer = otel.Tracer("standings-sync.pipeline")

// Outcome is how a run ended when it did not fail.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeReplay means today's artifact was already published.
	OutcomeReplay    Outcome = "replay"
	OutcomeDryRun    Outcome = "dry-run"
	OutcomePublished Outcome = "published"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (publish.Result, error)
	LocalPath(name string) string
}

type Notifier interface {
	Notify(ctx context.Context, datedName string) error
}

// DatedName is the name an artifact published at t is stored under.
func DatedName(extension string, t time.Time) string {
	return fmt.Sprintf("standings_%s.%s", chrono.DateStamp(t), extension)
}

// AliasName is the name that always points at the latest artifact.
func AliasName(extension string) string {
	return "latest." + extension
}

type Options struct {
	Feed      string
	Policy    detect.Policy
	Extension string
	// DryRun stops a run after change detection, nothing is written.
	DryRun bool
}

type Deps struct {
	Locator   locate.Locator
	Fetcher   Fetcher
	Detector  detect.Detector
	Markers   marker.Store
	Publisher Publisher
	Notifier  Notifier
	Time      chrono.TimeAPI
	Metrics   telemetry.SyncMetrics
	Tel       telemetry.API
}

// Result describes a run that did not fail. Published is only set for
// OutcomePublished.
type Result struct {
	Feed      string
	Outcome   Outcome
	URL       string
	Identity  string
	DatedName string
	Reason    string
	Published publish.Result
}

// Pipeline checks a single feed for a new artifact and publishes it.
type Pipeline struct {
	opts Options
	deps Deps
	tel  telemetry.API
}

func New(opts Options, deps Deps) Pipeline {
	assert.NotEmptyStr(opts.Feed, "feed")
	assert.NotEmptyStr(opts.Extension, "extension")
	assert.NotNil(deps.Locator, "locator")
	assert.NotNil(deps.Fetcher, "fetcher")
	assert.NotNil(deps.Detector, "detector")
	assert.NotNil(deps.Markers, "markers")
	assert.NotNil(deps.Publisher, "publisher")
	assert.NotNil(deps.Notifier, "notifier")
	assert.NotNil(deps.Time, "time")
	assert.NotNil(deps.Tel, "tel")

	return Pipeline{
		opts: opts,
		deps: deps,
		tel:  telemetry.NewScopedAPI("pipeline."+opts.Feed, deps.Tel),
	}
}

func (p Pipeline) Feed() string {
	return p.opts.Feed
}

func (p Pipeline) count(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (p Pipeline) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	p.count(
		ctx,
		p.deps.Metrics.Runs,
		attribute.String("feed", p.opts.Feed),
		attribute.String("outcome", "error"),
	)
	p.tel.ReportBroken(report_run, err, "stage", stage)
	return err
}

func (p Pipeline) done(ctx context.Context, span trace.Span, result Result) Result {
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	p.count(
		ctx,
		p.deps.Metrics.Runs,
		attribute.String("feed", p.opts.Feed),
		attribute.String("outcome", string(result.Outcome)),
	)
	p.tel.ReportDebug(
		"run finished",
		"outcome", result.Outcome,
		"reason", result.Reason,
		"url", result.URL,
	)
	return result
}

// alreadyPublished is true when the dated file for today holds exactly data
// and the marker already names it. Both are needed since the local copy is
// written before the upload, a failed publish leaves it behind.
func (p Pipeline) alreadyPublished(ctx context.Context, datedName string, data []byte, identity, previous string) bool {
	if previous != identity {
		return false
	}
	matches, err := detect.LocalCopyMatches(p.deps.Publisher.LocalPath(datedName), data)
	if err != nil {
		p.tel.ReportWarning(report_replay_check, err, "dated_name", datedName)
		return false
	}
	return matches
}

// Run goes through locate, fetch, change detection, publish and notify,
// stopping early when nothing changed or in a dry run. Errors are one of
// *locate.Error, *fetch.Error, *publish.Error or *notify.Error, or a marker
// read failure.
func (p Pipeline) Run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("feed", p.opts.Feed))

	result := Result{Feed: p.opts.Feed}

	url, err := p.deps.Locator.Locate(ctx)
	if err != nil {
		return result, p.fail(ctx, span, "locate", err)
	}
	result.URL = url
	span.SetAttributes(attribute.String("url", url))

	data, err := p.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		return result, p.fail(ctx, span, "fetch", err)
	}

	candidate := detect.Candidate{URL: url, Data: data}
	result.Identity = detect.Identity(p.opts.Policy, candidate)
	result.DatedName = DatedName(p.opts.Extension, p.deps.Time.Now())

	previous, err := p.deps.Markers.Read(ctx)
	if err != nil {
		return result, p.fail(ctx, span, "marker", fmt.Errorf("read marker: %w", err))
	}

	if p.alreadyPublished(ctx, result.DatedName, data, result.Identity, previous) {
		result.Outcome = OutcomeReplay
		result.Reason = "already published today"
		return p.done(ctx, span, result), nil
	}

	decision := p.deps.Detector.HasChanged(ctx, candidate, previous)
	result.Reason = decision.Reason
	if !decision.Changed {
		result.Outcome = OutcomeUnchanged
		return p.done(ctx, span, result), nil
	}
	if p.opts.DryRun {
		result.Outcome = OutcomeDryRun
		return p.done(ctx, span, result), nil
	}

	published, err := p.deps.Publisher.Publish(ctx, publish.Request{
		Data:      data,
		DatedName: result.DatedName,
		AliasName: AliasName(p.opts.Extension),
		Identity:  result.Identity,
	})
	if err != nil {
		return result, p.fail(ctx, span, "publish", err)
	}
	result.Published = published
	p.count(ctx, p.deps.Metrics.Publishes, attribute.String("feed", p.opts.Feed))

	err = p.deps.Notifier.Notify(ctx, result.DatedName)
	if err != nil {
		// the artifact is already live, only the announcement is missing
		return result, p.fail(ctx, span, "notify", err)
	}

	result.Outcome = OutcomePublished
	return p.done(ctx, span, result), nil
}
