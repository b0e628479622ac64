package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"standings-sync/internal/remote"
	"standings-sync/internal/testutil"
	"testing"

	"github.com/stretchr/testify/require"
)

type brokenCopy struct{}

func (brokenCopy) Previous(ctx context.Context) ([]byte, error) {
	return nil, errors.New("530 not logged in")
}

func TestParsePolicy(t *testing.T) {
	for _, valid := range []string{"url", "hash", "content"} {
		policy, err := ParsePolicy(valid)
		require.NoError(t, err)
		require.Equal(t, Policy(valid), policy)
	}
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyContent, policy)

	_, err = ParsePolicy("etag")
	require.Error(t, err)
}

func TestIdentity(t *testing.T) {
	candidate := Candidate{URL: "https://example.com/a.pdf", Data: []byte("standings")}
	require.Equal(t, "https://example.com/a.pdf", Identity(PolicyURL, candidate))
	require.Equal(t, Digest(candidate.Data), Identity(PolicyHash, candidate))
	require.Equal(t, Digest(candidate.Data), Identity(PolicyContent, candidate))
	require.Len(t, Digest(nil), 64)
	require.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
}

func TestIdentityDetectorURL(t *testing.T) {
	ctx := context.Background()
	detector := IdentityDetector{Policy: PolicyURL}

	require.True(t, detector.HasChanged(ctx, Candidate{URL: "https://x/a.pdf"}, "").Changed)
	require.True(t, detector.HasChanged(ctx, Candidate{URL: "https://x/b.pdf"}, "https://x/a.pdf").Changed)
	require.False(t, detector.HasChanged(ctx, Candidate{URL: "https://x/a.pdf"}, "https://x/a.pdf").Changed)

	// a stable url hides changed content under this policy
	decision := detector.HasChanged(ctx, Candidate{URL: "https://x/a.pdf", Data: []byte("new")}, "https://x/a.pdf")
	require.False(t, decision.Changed)
}

func TestIdentityDetectorHash(t *testing.T) {
	ctx := context.Background()
	detector := IdentityDetector{Policy: PolicyHash}
	old := Digest([]byte("week 1"))

	require.True(t, detector.HasChanged(ctx, Candidate{URL: "https://x/a.pdf", Data: []byte("week 2")}, old).Changed)
	require.False(t, detector.HasChanged(ctx, Candidate{URL: "https://x/other.pdf", Data: []byte("week 1")}, old).Changed)
}

func TestContentDetectorRemoteAlias(t *testing.T) {
	ctx := context.Background()
	store := remote.NewDirStore(t.TempDir())
	require.NoError(t, store.EnsureDir(ctx, "feed"))

	tel := &testutil.RecordingAPI{}
	detector := NewContentDetector(RemoteAlias{Store: store, Dir: "feed", Name: "latest.pdf"}, tel)

	decision := detector.HasChanged(ctx, Candidate{Data: []byte("week 1")}, "")
	require.True(t, decision.Changed)
	require.Equal(t, "no previous copy exists", decision.Reason)

	require.NoError(t, store.Upload(ctx, "feed", "latest.pdf", []byte("week 1")))
	require.False(t, detector.HasChanged(ctx, Candidate{Data: []byte("week 1")}, Digest([]byte("week 1"))).Changed)
	require.True(t, detector.HasChanged(ctx, Candidate{Data: []byte("week 2")}, Digest([]byte("week 1"))).Changed)
	require.Empty(t, tel.Reports("warning"))
}

func TestContentDetectorRequiresMatchingMarker(t *testing.T) {
	ctx := context.Background()
	store := remote.NewDirStore(t.TempDir())
	require.NoError(t, store.EnsureDir(ctx, "feed"))
	require.NoError(t, store.Upload(ctx, "feed", "latest.pdf", []byte("week 2")))

	detector := NewContentDetector(RemoteAlias{Store: store, Dir: "feed", Name: "latest.pdf"}, &testutil.RecordingAPI{})
	candidate := Candidate{Data: []byte("week 2")}

	// alias uploaded but the marker still names last week
	decision := detector.HasChanged(ctx, candidate, Digest([]byte("week 1")))
	require.True(t, decision.Changed)
	require.Equal(t, "marker does not match published content", decision.Reason)

	require.True(t, detector.HasChanged(ctx, candidate, "").Changed)
	require.False(t, detector.HasChanged(ctx, candidate, Digest([]byte("week 2"))).Changed)
}

func TestContentDetectorFailsOpen(t *testing.T) {
	tel := &testutil.RecordingAPI{}
	detector := NewContentDetector(brokenCopy{}, tel)

	decision := detector.HasChanged(context.Background(), Candidate{Data: []byte("week 1")}, "")
	require.True(t, decision.Changed)
	require.Contains(t, decision.Reason, "530 not logged in")
	require.True(t, tel.HasReport("warning", "detect.previous-copy"))
}

func TestContentDetectorLocalCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.pdf")
	detector := NewContentDetector(LocalCopy{Path: path}, &testutil.RecordingAPI{})

	require.True(t, detector.HasChanged(context.Background(), Candidate{Data: []byte("a")}, "").Changed)
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))
	require.False(t, detector.HasChanged(context.Background(), Candidate{Data: []byte("a")}, Digest([]byte("a"))).Changed)
}

func TestLocalCopyMatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standings_2024-10-02.pdf")

	matches, err := LocalCopyMatches(path, []byte("a"))
	require.NoError(t, err)
	require.False(t, matches)

	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))
	matches, err = LocalCopyMatches(path, []byte("a"))
	require.NoError(t, err)
	require.True(t, matches)

	matches, err = LocalCopyMatches(path, []byte("b"))
	require.NoError(t, err)
	require.False(t, matches)
}
