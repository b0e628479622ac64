package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"standings-sync/internal/assert"
	"standings-sync/internal/marker"
	"standings-sync/internal/osutil"
	"standings-sync/internal/remote"
	"standings-sync/internal/retry"
	"standings-sync/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("standings-sync.publish")

// Step names a stage of a publish, in the order they run.
type Step string

const (
	StepSave        Step = "save"
	StepEnsureDir   Step = "ensure-dir"
	StepUploadDated Step = "upload-dated"
	StepUploadAlias Step = "upload-alias"
	StepLocalAlias  Step = "local-alias"
	StepMarker      Step = "marker"
)

// Error is returned when a step failed after exhausting its retries. Steps
// before Step completed, steps after it did not run.
type Error struct {
	Step Step
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s (%s): %s", e.Step, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Request is an artifact ready to be published.
type Request struct {
	Data      []byte
	DatedName string
	AliasName string
	// Identity is written to the marker once everything else succeeded.
	Identity string
}

type Result struct {
	DatedName string
	AliasName string
	LocalPath string
	RemoteDir string
	Identity  string
}

// Options describes where a feed's artifacts go.
type Options struct {
	LocalDir  string
	RemoteDir string
	Policy    retry.Policy
}

// Publisher writes an artifact locally, uploads it under its dated name and
// the alias, then advances the marker.
type Publisher struct {
	opts   Options
	store  remote.Store
	marker marker.Store
	tel    telemetry.API
}

func NewPublisher(opts Options, store remote.Store, markers marker.Store, tel telemetry.API) Publisher {
	assert.NotEmptyStr(opts.LocalDir, "local dir")
	assert.NotNil(store, "store")
	assert.NotNil(markers, "markers")
	assert.NotNil(tel, "tel")

	opts.Policy = opts.Policy.WithDefaults()
	return Publisher{
		opts:   opts,
		store:  store,
		marker: markers,
		tel:    telemetry.NewScopedAPI("publish", tel),
	}
}

// LocalPath is where name is kept on the local disk.
func (p Publisher) LocalPath(name string) string {
	return filepath.Join(p.opts.LocalDir, name)
}

func (p Publisher) remotePath(name string) string {
	return path.Join(p.opts.RemoteDir, name)
}

func (p Publisher) step(ctx context.Context, step Step, target string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, string(step))
	defer span.End()
	span.SetAttributes(attribute.String("path", target))

	err := retry.Do(ctx, p.opts.Policy, func(ctx context.Context, attempt int) error {
		return fn(ctx)
	}, func(attempt int, err error) {
		p.tel.ReportWarning(string(step), err, "attempt", attempt, "path", target)
	})
	if err != nil {
		pubErr := &Error{Step: step, Path: target, Err: err}
		span.RecordError(pubErr)
		span.SetStatus(codes.Error, "publish step failed")
		p.tel.ReportBroken(string(step), pubErr)
		return pubErr
	}
	p.tel.ReportDebug("step done", "step", step, "path", target)
	return nil
}

// Publish runs every step in order and stops at the first one that fails.
// The marker is only written when all remote and local writes succeeded, so
// a failed publish is retried in full by the next run.
func (p Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	assert.NotEmptyStr(req.DatedName, "dated name")
	assert.NotEmptyStr(req.AliasName, "alias name")

	result := Result{
		DatedName: req.DatedName,
		AliasName: req.AliasName,
		LocalPath: p.LocalPath(req.DatedName),
		RemoteDir: p.opts.RemoteDir,
		Identity:  req.Identity,
	}

	err := p.step(ctx, StepSave, result.LocalPath, func(ctx context.Context) error {
		err := os.MkdirAll(p.opts.LocalDir, 0755)
		if err != nil {
			return err
		}
		return osutil.WriteFileAtomic(result.LocalPath, req.Data)
	})
	if err != nil {
		return result, err
	}

	err = p.step(ctx, StepEnsureDir, p.opts.RemoteDir, func(ctx context.Context) error {
		return p.store.EnsureDir(ctx, p.opts.RemoteDir)
	})
	if err != nil {
		return result, err
	}

	err = p.step(ctx, StepUploadDated, p.remotePath(req.DatedName), func(ctx context.Context) error {
		return p.store.Upload(ctx, p.opts.RemoteDir, req.DatedName, req.Data)
	})
	if err != nil {
		return result, err
	}

	err = p.step(ctx, StepUploadAlias, p.remotePath(req.AliasName), func(ctx context.Context) error {
		return p.store.Upload(ctx, p.opts.RemoteDir, req.AliasName, req.Data)
	})
	if err != nil {
		return result, err
	}

	err = p.step(ctx, StepLocalAlias, p.LocalPath(req.AliasName), func(ctx context.Context) error {
		return osutil.WriteFileAtomic(p.LocalPath(req.AliasName), req.Data)
	})
	if err != nil {
		return result, err
	}

	err = p.step(ctx, StepMarker, req.Identity, func(ctx context.Context) error {
		return p.marker.Write(ctx, req.Identity)
	})
	if err != nil {
		return result, err
	}

	p.tel.ReportCount("bytes", int64(len(req.Data)))
	return result, nil
}
