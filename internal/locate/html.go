package locate

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"standings-sync/internal/assert"
	"standings-sync/internal/telemetry"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const report_page = "page"

// PageSource returns the html of a page.
type PageSource interface {
	HTML(ctx context.Context, pageURL string) (string, error)
}

// HTTPPage fetches the page html with a single GET.
type HTTPPage struct {
	client  *resty.Client
	timeout time.Duration
}

func NewHTTPPage(client *resty.Client, timeout time.Duration) HTTPPage {
	assert.NotNil(client, "client")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.SetHeader("User-Agent", "Mozilla/5.0")
	return HTTPPage{client: client, timeout: timeout}
}

func (p HTTPPage) HTML(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.client.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		return "", err
	}
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", res.Status())
	}
	return res.String(), nil
}

func parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBufferString(html))
}

// Anchor finds the first <a> whose href ends in ".pdf".
type Anchor struct {
	PageURL string
	BaseURL string
	Source  PageSource
	tel     telemetry.API
}

func NewAnchor(pageURL, baseURL string, source PageSource, tel telemetry.API) Anchor {
	assert.NotEmptyStr(pageURL, "pageURL")
	assert.NotNil(source, "source")
	assert.NotNil(tel, "tel")
	return Anchor{
		PageURL: pageURL,
		BaseURL: baseURL,
		Source:  source,
		tel:     telemetry.NewScopedAPI("locate_anchor", tel),
	}
}

func (a Anchor) fail(err error) error {
	locErr := &Error{Strategy: "anchor", Page: a.PageURL, Err: err}
	a.tel.ReportBroken(report_page, locErr)
	return locErr
}

func (a Anchor) Locate(ctx context.Context) (string, error) {
	html, err := a.Source.HTML(ctx, a.PageURL)
	if err != nil {
		return "", a.fail(err)
	}
	doc, err := parse(html)
	if err != nil {
		return "", a.fail(err)
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		candidate := strings.TrimSpace(s.AttrOr("href", ""))
		if strings.HasSuffix(candidate, ".pdf") {
			href = candidate
			return false
		}
		return true
	})
	if href == "" {
		return "", a.fail(ErrAnchorNotFound)
	}

	resolved, err := resolve(a.BaseURL, href)
	if err != nil {
		return "", a.fail(err)
	}
	a.tel.ReportDebug("resolved pdf url", "url", resolved)
	return resolved, nil
}

// ExportButton reads the artifact path out of the onclick handler of the
// export button.
type ExportButton struct {
	PageURL string
	BaseURL string
	Source  PageSource
	tel     telemetry.API
}

func NewExportButton(pageURL, baseURL string, source PageSource, tel telemetry.API) ExportButton {
	assert.NotEmptyStr(pageURL, "pageURL")
	assert.NotNil(source, "source")
	assert.NotNil(tel, "tel")
	return ExportButton{
		PageURL: pageURL,
		BaseURL: baseURL,
		Source:  source,
		tel:     telemetry.NewScopedAPI("locate_export_button", tel),
	}
}

func (b ExportButton) fail(err error) error {
	locErr := &Error{Strategy: "export-button", Page: b.PageURL, Err: err}
	b.tel.ReportBroken(report_page, locErr)
	return locErr
}

func (b ExportButton) Locate(ctx context.Context) (string, error) {
	html, err := b.Source.HTML(ctx, b.PageURL)
	if err != nil {
		return "", b.fail(err)
	}
	doc, err := parse(html)
	if err != nil {
		return "", b.fail(err)
	}

	button := doc.Find("button" + ExportButtonSelector).First()
	if button.Length() == 0 {
		return "", b.fail(ErrButtonNotFound)
	}
	onclick, ok := button.Attr("onclick")
	if !ok {
		return "", b.fail(ErrNoOnclick)
	}
	path, ok := quotedPath(onclick)
	if !ok {
		return "", b.fail(ErrNoQuotedPath)
	}

	resolved, err := resolve(b.BaseURL, path)
	if err != nil {
		return "", b.fail(err)
	}
	b.tel.ReportDebug("resolved pdf url", "url", resolved)
	return resolved, nil
}
