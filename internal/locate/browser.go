package locate

import (
	"context"
	"fmt"
	"standings-sync/internal/assert"
	"standings-sync/internal/telemetry"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

const report_browser = "browser"

// BrowserConfig configures the headless browser used by the rendered page
// source and the popup strategy.
type BrowserConfig struct {
	// Bin is the chrome binary, when empty rod looks one up or downloads it.
	Bin string `json:"bin"`
	// DebuggerURL connects to an already running browser instead of launching one.
	DebuggerURL string `json:"debugger_url"`
	// ShowWindow disables headless mode, useful when debugging a selector.
	ShowWindow bool `json:"show_window"`
}

// Browser launches a short lived browser for every page it opens.
type Browser struct {
	cfg       BrowserConfig
	navigate  time.Duration
	element   time.Duration
	popup     time.Duration
	clickWait time.Duration
	tel       telemetry.API
}

func NewBrowser(cfg BrowserConfig, tel telemetry.API) Browser {
	assert.NotNil(tel, "tel")
	return Browser{
		cfg:       cfg,
		navigate:  30 * time.Second,
		element:   15 * time.Second,
		popup:     10 * time.Second,
		clickWait: 2 * time.Second,
		tel:       telemetry.NewScopedAPI("browser", tel),
	}
}

// session opens a browser, release must be called once the caller is done with it.
func (b Browser) session(ctx context.Context) (browser *rod.Browser, release func(), err error) {
	controlURL := b.cfg.DebuggerURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().
			Headless(!b.cfg.ShowWindow).
			Set(flags.NoSandbox).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("window-size", "1920,1080")
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		controlURL, err = l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch chrome: %w", err)
		}
	}

	browser = rod.New().ControlURL(controlURL).Context(ctx)
	err = browser.Connect()
	if err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return browser, func() {
		err := browser.Close()
		if err != nil {
			b.tel.ReportWarning(report_browser, fmt.Errorf("close browser: %w", err))
		}
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
	}, nil
}

func (b Browser) open(browser *rod.Browser, pageURL string) (*rod.Page, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	err = page.Timeout(b.navigate).Navigate(pageURL)
	if err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	err = page.Timeout(b.navigate).WaitLoad()
	if err != nil {
		return nil, fmt.Errorf("wait for %s to load: %w", pageURL, err)
	}
	return page, nil
}

// HTML returns the page html after scripts have run and the export button
// has been rendered.
func (b Browser) HTML(ctx context.Context, pageURL string) (string, error) {
	browser, release, err := b.session(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	page, err := b.open(browser, pageURL)
	if err != nil {
		return "", err
	}
	_, err = page.Timeout(b.element).Element(ExportButtonSelector)
	if err != nil {
		// the page may still carry the artifact in another form
		b.tel.ReportWarning(report_browser, fmt.Errorf("wait for %s: %w", ExportButtonSelector, err), pageURL)
	}
	return page.HTML()
}

// Popup clicks the export button and returns the url of the window it opens.
type Popup struct {
	PageURL string
	browser Browser
	tel     telemetry.API
}

func NewPopup(pageURL string, browser Browser, tel telemetry.API) Popup {
	assert.NotEmptyStr(pageURL, "pageURL")
	assert.NotNil(tel, "tel")
	return Popup{
		PageURL: pageURL,
		browser: browser,
		tel:     telemetry.NewScopedAPI("locate_popup", tel),
	}
}

func (p Popup) fail(err error) error {
	locErr := &Error{Strategy: "popup", Page: p.PageURL, Err: err}
	p.tel.ReportBroken(report_page, locErr)
	return locErr
}

func (p Popup) Locate(ctx context.Context) (string, error) {
	browser, release, err := p.browser.session(ctx)
	if err != nil {
		return "", p.fail(err)
	}
	defer release()

	page, err := p.browser.open(browser, p.PageURL)
	if err != nil {
		return "", p.fail(err)
	}

	button, err := page.Timeout(p.browser.element).Element(ExportButtonSelector)
	if err != nil {
		return "", p.fail(fmt.Errorf("%w: %s", ErrButtonNotFound, err))
	}
	err = button.ScrollIntoView()
	if err != nil {
		return "", p.fail(err)
	}
	err = button.Timeout(p.browser.clickWait).WaitEnabled()
	if err != nil {
		return "", p.fail(err)
	}

	waitOpen := page.Timeout(p.browser.popup).WaitOpen()
	_, err = button.Eval(`() => this.click()`)
	if err != nil {
		return "", p.fail(fmt.Errorf("click export button: %w", err))
	}
	popup, err := waitOpen()
	if err != nil {
		return "", p.fail(fmt.Errorf("%w: %s", ErrNoPopup, err))
	}

	popupURL, err := p.waitForURL(ctx, popup)
	if err != nil {
		return "", p.fail(err)
	}
	p.tel.ReportDebug("resolved pdf url", "url", popupURL)
	return popupURL, nil
}

// a freshly opened window reports about:blank until its navigation commits
func (p Popup) waitForURL(ctx context.Context, popup *rod.Page) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.browser.popup)
	defer cancel()

	for {
		info, err := popup.Info()
		if err != nil {
			return "", err
		}
		if info.URL != "" && info.URL != "about:blank" {
			return info.URL, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: popup url stayed %q", ErrNoPopup, info.URL)
		case <-time.After(200 * time.Millisecond):
		}
	}
}
