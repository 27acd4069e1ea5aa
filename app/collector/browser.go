package collector

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var _ Fetcher = (*Browser)(nil)

// Browser fetches search result pages through a headless browser. The
// pages are rendered client-side, so a plain HTTP GET returns nothing
// usable. Each fetch uses a fresh browser instance with a rotated user
// agent.
type Browser struct {
	launcherURL string
	userAgent   string

	listingSelector string
	waitTimeout     time.Duration
}

// NewBrowser creates a browser-backed fetcher. launcherURL points at a
// remote rod launcher; when empty a local headless browser is launched
// per fetch. userAgent pins a fixed agent; when empty one is picked at
// random per fetch.
func NewBrowser(launcherURL, userAgent string) *Browser {
	return &Browser{
		launcherURL:     launcherURL,
		userAgent:       userAgent,
		listingSelector: `a[href^="/marketplace/item/"]`,
		waitTimeout:     20 * time.Second,
	}
}

func (b *Browser) FetchListings(ctx context.Context, searchURL string, currency string) ([]Listing, error) {
	html, err := b.fetchHTML(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	listings, err := ExtractListings(html, currency)
	if err != nil {
		return nil, &Error{Op: "extract", URL: searchURL, Err: err, Transient: false}
	}

	return listings, nil
}

func (b *Browser) fetchHTML(ctx context.Context, searchURL string) (string, error) {
	var l *launcher.Launcher
	if b.launcherURL != "" {
		l = launcher.MustNewManaged(b.launcherURL)
	} else {
		l = launcher.New().Headless(true).Logger(io.Discard)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return "", &Error{Op: "launch", URL: searchURL, Err: err, Transient: true}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return "", &Error{Op: "connect", URL: searchURL, Err: err, Transient: true}
	}
	defer func() {
		browser.Close()
		l.Cleanup()
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", &Error{Op: "open page", URL: searchURL, Err: err, Transient: true}
	}

	userAgent := b.userAgent
	if userAgent == "" {
		userAgent = randomUserAgent()
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		return "", &Error{Op: "set user agent", URL: searchURL, Err: err, Transient: true}
	}

	if err := page.Context(ctx).Navigate(searchURL); err != nil {
		return "", &Error{Op: "navigate", URL: searchURL, Err: err, Transient: true}
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return "", &Error{Op: "wait load", URL: searchURL, Err: err, Transient: true}
	}

	// A redirect to a login or checkpoint page means the account/IP is
	// soft blocked; retrying within the cycle would make it worse.
	if info, err := page.Info(); err == nil {
		landed := strings.ToLower(info.URL)
		if strings.Contains(landed, "login") || strings.Contains(landed, "checkpoint") {
			return "", &Error{Op: "navigate", URL: searchURL, Err: errSoftBlock(landed), Transient: false}
		}
	}

	if _, err := page.Context(ctx).Timeout(b.waitTimeout).Element(b.listingSelector); err != nil {
		return "", &Error{Op: "wait listings", URL: searchURL, Err: err, Transient: true}
	}

	html, err := page.HTML()
	if err != nil {
		return "", &Error{Op: "read page", URL: searchURL, Err: err, Transient: true}
	}

	return html, nil
}

type errSoftBlock string

func (e errSoftBlock) Error() string {
	return "soft block detected: redirected to " + string(e)
}
