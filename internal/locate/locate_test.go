package locate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"standings-sync/internal/testutil"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	html string
	err  error
}

func (f fakePage) HTML(ctx context.Context, pageURL string) (string, error) {
	return f.html, f.err
}

const standingsPage = `<html><body>
<a href="/league/standings-png/109647">Standings</a>
<a href="/uploads/Standings_109647.pdf">Download PDF</a>
<a href="/uploads/Older.pdf">Older</a>
<button id="customExport" onclick="window.open('/league/export/standings.pdf?id=109647', '_blank')">Export</button>
</body></html>`

func TestAnchorResolvesRelativeHref(t *testing.T) {
	tel := &testutil.RecordingAPI{}
	anchor := NewAnchor("https://leaguesecretary.com/page", DefaultBaseURL, fakePage{html: standingsPage}, tel)

	url, err := anchor.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://www.leaguesecretary.com/uploads/Standings_109647.pdf", url)
}

func TestAnchorKeepsAbsoluteHref(t *testing.T) {
	page := `<a href="https://cdn.example.com/files/standings.pdf">pdf</a>`
	anchor := NewAnchor("https://example.com", "", fakePage{html: page}, &testutil.RecordingAPI{})

	url, err := anchor.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/files/standings.pdf", url)
}

func TestAnchorMissing(t *testing.T) {
	tel := &testutil.RecordingAPI{}
	page := `<a href="/standings.png">png</a><a>no href</a>`
	anchor := NewAnchor("https://example.com", "", fakePage{html: page}, tel)

	_, err := anchor.Locate(context.Background())
	var locErr *Error
	require.ErrorAs(t, err, &locErr)
	require.Equal(t, "anchor", locErr.Strategy)
	require.ErrorIs(t, err, ErrAnchorNotFound)
	require.True(t, tel.HasReport("broken", "locate_anchor.page"))
}

func TestAnchorPageError(t *testing.T) {
	sentinel := errors.New("connection refused")
	anchor := NewAnchor("https://example.com", "", fakePage{err: sentinel}, &testutil.RecordingAPI{})

	_, err := anchor.Locate(context.Background())
	var locErr *Error
	require.ErrorAs(t, err, &locErr)
	require.ErrorIs(t, err, sentinel)
}

func TestExportButton(t *testing.T) {
	button := NewExportButton("https://example.com", DefaultBaseURL, fakePage{html: standingsPage}, &testutil.RecordingAPI{})

	url, err := button.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://www.leaguesecretary.com/league/export/standings.pdf?id=109647", url)
}

func TestExportButtonFailures(t *testing.T) {
	cases := []struct {
		name     string
		html     string
		expected error
	}{
		{name: "no button", html: `<div id="customExport"></div>`, expected: ErrButtonNotFound},
		{name: "no onclick", html: `<button id="customExport">Export</button>`, expected: ErrNoOnclick},
		{name: "no quotes", html: `<button id="customExport" onclick="exportPdf()">Export</button>`, expected: ErrNoQuotedPath},
		{name: "unterminated", html: `<button id="customExport" onclick="open('/x.pdf">Export</button>`, expected: ErrNoQuotedPath},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			button := NewExportButton("https://example.com", "", fakePage{html: test.html}, &testutil.RecordingAPI{})
			_, err := button.Locate(context.Background())
			require.ErrorIs(t, err, test.expected)

			var locErr *Error
			require.ErrorAs(t, err, &locErr)
			require.Equal(t, "export-button", locErr.Strategy)
		})
	}
}

func TestQuotedPath(t *testing.T) {
	path, ok := quotedPath(`window.open('/a/b.pdf', '_blank')`)
	require.True(t, ok)
	require.Equal(t, "/a/b.pdf", path)

	_, ok = quotedPath(`window.open('')`)
	require.False(t, ok)
}

func TestStatic(t *testing.T) {
	url, err := Static{URL: "https://example.com/latest.pdf"}.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example.com/latest.pdf", url)

	_, err = Static{}.Locate(context.Background())
	var locErr *Error
	require.ErrorAs(t, err, &locErr)
}

func TestHTTPPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/standings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(standingsPage))
	}))
	defer server.Close()

	page := NewHTTPPage(resty.New(), 0)
	anchor := NewAnchor(server.URL+"/standings", server.URL, page, &testutil.RecordingAPI{})
	url, err := anchor.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, server.URL+"/uploads/Standings_109647.pdf", url)

	_, err = page.HTML(context.Background(), server.URL+"/missing")
	require.ErrorContains(t, err, "404")
}

// requires a local chrome, set STANDINGS_SYNC_BROWSER_TEST=1 to run
func TestPopup(t *testing.T) {
	if os.Getenv("STANDINGS_SYNC_BROWSER_TEST") != "1" {
		t.Skip("STANDINGS_SYNC_BROWSER_TEST is not set")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/standings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
<button id="customExport" onclick="window.open('/export/standings.pdf', '_blank')">Export</button>
</body></html>`))
	})
	mux.HandleFunc("/export/standings.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("standings"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tel := &testutil.RecordingAPI{}
	popup := NewPopup(server.URL+"/standings", NewBrowser(BrowserConfig{}, tel), tel)
	url, err := popup.Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, server.URL+"/export/standings.pdf", url)
}
