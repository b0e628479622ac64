// Package detect decides whether a fetched artifact differs from the one that
// was published last.
package detect

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"standings-sync/internal/assert"
	"standings-sync/internal/remote"
	"standings-sync/internal/telemetry"

	"github.com/zeebo/blake3"
)

const report_previous_copy = "previous-copy"

// Policy names how a feed detects change.
type Policy string

const (
	// PolicyURL compares the resolved artifact url with the marker. A feed
	// whose url never changes while its content does is never detected as
	// changed under this policy, use PolicyHash or PolicyContent for those.
	PolicyURL Policy = "url"
	// PolicyHash compares the BLAKE3 digest of the artifact with the marker.
	PolicyHash Policy = "hash"
	// PolicyContent compares the artifact byte for byte with the previously
	// published copy, a missing copy counts as changed.
	PolicyContent Policy = "content"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyURL, PolicyHash, PolicyContent:
		return Policy(s), nil
	case "":
		return PolicyContent, nil
	}
	return "", fmt.Errorf("unknown change detection policy %q (expected url, hash or content)", s)
}

// Candidate is a freshly fetched artifact.
type Candidate struct {
	URL  string
	Data []byte
}

// Digest returns the hex encoded BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Identity returns the marker value recorded for candidate under policy.
func Identity(policy Policy, candidate Candidate) string {
	if policy == PolicyURL {
		return candidate.URL
	}
	return Digest(candidate.Data)
}

// Decision is the outcome of change detection.
type Decision struct {
	Changed bool
	Reason  string
}

// Detector decides whether candidate is new relative to the stored marker.
type Detector interface {
	HasChanged(ctx context.Context, candidate Candidate, marker string) Decision
}

// IdentityDetector implements PolicyURL and PolicyHash.
type IdentityDetector struct {
	Policy Policy
}

func (d IdentityDetector) HasChanged(ctx context.Context, candidate Candidate, marker string) Decision {
	identity := Identity(d.Policy, candidate)
	if marker == "" {
		return Decision{Changed: true, Reason: "no marker recorded"}
	}
	if identity != marker {
		return Decision{Changed: true, Reason: fmt.Sprintf("%s identity changed", d.Policy)}
	}
	return Decision{Changed: false, Reason: fmt.Sprintf("%s identity matches marker", d.Policy)}
}

// PreviousCopy returns the bytes of the most recently published artifact.
type PreviousCopy interface {
	Previous(ctx context.Context) ([]byte, error)
}

// RemoteAlias reads the alias file from the remote store.
type RemoteAlias struct {
	Store remote.Store
	Dir   string
	Name  string
}

func (r RemoteAlias) Previous(ctx context.Context) ([]byte, error) {
	return r.Store.Download(ctx, r.Dir, r.Name)
}

// LocalCopy reads a locally kept copy of the last published artifact.
type LocalCopy struct {
	Path string
}

func (l LocalCopy) Previous(ctx context.Context) ([]byte, error) {
	return os.ReadFile(l.Path)
}

// ContentDetector implements PolicyContent. It fails open: when the previous
// copy cannot be read the artifact is treated as changed. Matching content is
// only unchanged when the marker holds its digest.
type ContentDetector struct {
	previous PreviousCopy
	tel      telemetry.API
}

func NewContentDetector(previous PreviousCopy, tel telemetry.API) ContentDetector {
	assert.NotNil(previous, "previous")
	assert.NotNil(tel, "tel")
	return ContentDetector{
		previous: previous,
		tel:      telemetry.NewScopedAPI("detect", tel),
	}
}

func (d ContentDetector) HasChanged(ctx context.Context, candidate Candidate, marker string) Decision {
	previous, err := d.previous.Previous(ctx)
	if errors.Is(err, os.ErrNotExist) {
		return Decision{Changed: true, Reason: "no previous copy exists"}
	}
	if err != nil {
		d.tel.ReportWarning(report_previous_copy, err)
		return Decision{Changed: true, Reason: fmt.Sprintf("previous copy unavailable: %s", err)}
	}
	if len(previous) == 0 {
		return Decision{Changed: true, Reason: "previous copy is empty"}
	}
	if !bytes.Equal(previous, candidate.Data) {
		return Decision{Changed: true, Reason: "content differs from previous copy"}
	}
	// the alias is uploaded before the marker, a matching alias alone does
	// not mean the last publish completed
	if marker != Digest(candidate.Data) {
		return Decision{Changed: true, Reason: "marker does not match published content"}
	}
	return Decision{Changed: false, Reason: "content matches previous copy"}
}

// LocalCopyMatches reports whether the local dated file at path already holds
// exactly data. Together with a marker matching the artifact's identity this
// means the artifact was already published today.
func LocalCopyMatches(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(existing, data), nil
}
