// Package locate finds the url of the current standings artifact on a
// league's web page.
//
// Every strategy follows the same shape:
// 1. obtain the page (plain http or a rendered browser page).
// 2. find the element that points at the artifact.
// 3. turn the element into an absolute url.
// A missing element is an *Error, there is no fallback between strategies.
package locate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://www.leaguesecretary.com"

// ExportButtonSelector is the element league pages use to export standings.
const ExportButtonSelector = "#customExport"

// Locator resolves the url of the artifact to fetch.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// Error is returned when the artifact location could not be determined.
type Error struct {
	Strategy string
	Page     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("locate (%s) %s: %s", e.Strategy, e.Page, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrAnchorNotFound = errors.New("no <a> linking to a pdf found on page")
	ErrButtonNotFound = errors.New("export button not found")
	ErrNoOnclick      = errors.New("export button has no onclick attribute")
	ErrNoQuotedPath   = errors.New("export button onclick does not contain a quoted path")
	ErrNoPopup        = errors.New("export button did not open a new window")
)

// Static always returns the same url.
type Static struct {
	URL string
}

func (s Static) Locate(ctx context.Context) (string, error) {
	if s.URL == "" {
		return "", &Error{Strategy: "static", Err: errors.New("no url configured")}
	}
	return s.URL, nil
}

// resolve turns href into an absolute url, relative references are resolved
// against base.
func resolve(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if base == "" {
		base = DefaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// quotedPath returns the first single quoted string in a javascript snippet
// such as `window.open('/path/file.pdf')`.
func quotedPath(onclick string) (string, bool) {
	start := strings.IndexByte(onclick, '\'')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(onclick[start+1:], '\'')
	if end < 0 {
		return "", false
	}
	path := onclick[start+1 : start+1+end]
	if path == "" {
		return "", false
	}
	return path, true
}
