package commands

import (
	"standings-sync/internal/feed"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectFeeds(t *testing.T) {
	cfg := feed.Config{Feeds: []feed.Feed{{Name: "weds-mixers"}, {Name: "fri-seniors"}}}

	feeds, err := selectFeeds(cfg, true, nil)
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	feeds, err = selectFeeds(cfg, false, []string{"fri-seniors"})
	require.NoError(t, err)
	require.Equal(t, "fri-seniors", feeds[0].Name)

	_, err = selectFeeds(cfg, false, nil)
	require.Error(t, err)

	_, err = selectFeeds(cfg, true, []string{"fri-seniors"})
	require.Error(t, err)

	_, err = selectFeeds(cfg, false, []string{"tues-trios"})
	require.ErrorContains(t, err, "tues-trios")

	single := feed.Config{Feeds: cfg.Feeds[:1]}
	feeds, err = selectFeeds(single, false, nil)
	require.NoError(t, err)
	require.Equal(t, "weds-mixers", feeds[0].Name)

	_, err = selectFeeds(feed.Config{}, true, nil)
	require.ErrorContains(t, err, "no feeds")
}
