package fetch

import (
	"context"
	"fmt"
	"net/http"
	"standings-sync/internal/assert"
	"standings-sync/internal/retry"
	"standings-sync/internal/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_get      = "get"
	report_attempts = "attempts"
)

var tracer = otel.Tracer("standings-sync.fetch")

// UserAgent is sent with every request, some hosts reject the default go client.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) standings-sync"

// Error is returned when every attempt to fetch a url failed.
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: gave up after %d attempts: %s", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is a response that was received but did not have a 200 status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Fetcher downloads artifacts over http.
type Fetcher struct {
	client   *resty.Client
	policy   retry.Policy
	tel      telemetry.API
	attempts metric.Int64Counter
}

// NewFetcher creates a Fetcher. The policy's timeout bounds every attempt
// individually.
func NewFetcher(client *resty.Client, policy retry.Policy, tel telemetry.API) Fetcher {
	assert.NotNil(client, "client")
	assert.NotNil(tel, "tel")

	client.SetHeader("User-Agent", UserAgent)
	// retries are done by the policy, not by resty
	client.SetRetryCount(0)

	return Fetcher{
		client: client,
		policy: policy.WithDefaults(),
		tel:    telemetry.NewScopedAPI("fetch", tel),
	}
}

// WithAttemptCounter makes the fetcher add one to counter for every http
// attempt it makes.
func (f Fetcher) WithAttemptCounter(counter metric.Int64Counter) Fetcher {
	f.attempts = counter
	return f
}

// Fetch returns the body of url. Only a 200 response is accepted, anything
// else counts as a failed attempt and is retried according to the policy.
func (f Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	var body []byte
	attempts := 0
	err := retry.Do(ctx, f.policy, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if f.attempts != nil {
			f.attempts.Add(ctx, 1)
		}
		res, err := f.client.R().
			SetContext(ctx).
			Get(url)
		if err != nil {
			return err
		}
		if res.StatusCode() != http.StatusOK {
			return StatusError{StatusCode: res.StatusCode(), Status: res.Status()}
		}
		body = res.Body()
		return nil
	}, func(attempt int, err error) {
		f.tel.ReportWarning(report_get, err, "attempt", attempt, "url", url)
	})
	f.tel.ReportCount(report_attempts, int64(attempts))

	if err != nil {
		fetchErr := &Error{URL: url, Attempts: attempts, Err: err}
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, "fetch failed")
		f.tel.ReportBroken(report_get, fetchErr, "url", url)
		return nil, fetchErr
	}

	f.tel.ReportDebug("fetched artifact", "url", url, "attempt", attempts, "bytes", len(body))
	return body, nil
}
