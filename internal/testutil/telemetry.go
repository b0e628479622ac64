package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// Report is a single call made against a RecordingAPI.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// RecordingAPI implements telemetry.API by keeping every report in memory so
// tests can assert on what a component reported.
type RecordingAPI struct {
	mu      sync.Mutex
	reports []Report
}

func (r *RecordingAPI) record(kind, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, ID: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record("broken", id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record("warning", id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record("debug", msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.record("count", id, []any{count})
}

// Reports returns a copy of every report of the given kind.
func (r *RecordingAPI) Reports(kind string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Report
	for _, rep := range r.reports {
		if rep.Kind == kind {
			out = append(out, rep)
		}
	}
	return out
}

// HasReport checks if a report of the given kind has an id containing substr.
func (r *RecordingAPI) HasReport(kind, substr string) bool {
	for _, rep := range r.Reports(kind) {
		if strings.Contains(rep.ID, substr) {
			return true
		}
	}
	return false
}

func (r *RecordingAPI) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out strings.Builder
	for _, rep := range r.reports {
		out.WriteString(fmt.Sprintf("%s %s %v\n", rep.Kind, rep.ID, rep.Params))
	}
	return out.String()
}
