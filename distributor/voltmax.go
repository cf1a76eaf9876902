package distributor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

func init() {
	Register("voltmax", NewVoltmax)
}

// Voltmax is the adapter for the Voltmax wholesale portal: a JavaScript
// storefront with an infinite-scroll catalog. It drives one headless Chrome
// instance; the scroll loop re-reads the whole grid each iteration, so
// overlapping items are expected and left to the aggregator.
type Voltmax struct {
	profile *config.DistributorProfile
	browser *Browser

	mu sync.Mutex

	// pageEpoch is the browser teardown count when the catalog was last
	// loaded; a mismatch means the tab (and the loaded page) is gone.
	pageEpoch uint64
}

// NewVoltmax launches the browser and builds the adapter.
func NewVoltmax(profile *config.DistributorProfile) (Adapter, error) {
	browser, err := NewBrowser(profile.UserAgent, false)
	if err != nil {
		return nil, fmt.Errorf("launch browser for %s: %w", profile.Identifier, err)
	}
	return &Voltmax{profile: profile, browser: browser}, nil
}

// Authenticate fills the login form and waits for the account menu.
func (v *Voltmax) Authenticate(ctx context.Context, email, password string) (*models.AuthSession, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if email == "" || password == "" {
		return nil, AuthError{Err: errors.New("missing credentials")}
	}

	loginURL := v.profile.LoginURL
	if loginURL == "" {
		loginURL = strings.TrimSuffix(v.profile.BaseURL, "/") + "/login"
	}

	opCtx, cancel := context.WithTimeout(ctx, v.profile.Timeout)
	defer cancel()

	emailSel := fmt.Sprintf("input[name=%q]", v.profile.Credentials.Email)
	passwordSel := fmt.Sprintf("input[name=%q]", v.profile.Credentials.Password)

	var landed string
	err := v.browser.Run(opCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(emailSel, chromedp.ByQuery),
		chromedp.SendKeys(emailSel, email, chromedp.ByQuery),
		chromedp.SendKeys(passwordSel, password, chromedp.ByQuery),
		chromedp.Click("button[type=submit]", chromedp.ByQuery),
		chromedp.Sleep(v.settleDelay()),
		chromedp.Evaluate(loginOutcomeJS, &landed),
	)
	if err != nil {
		return nil, classifyBrowserErr(err)
	}

	switch landed {
	case "account":
		// logged in
	case "error":
		return nil, AuthError{Err: errors.New("portal rejected credentials")}
	default:
		return nil, AuthError{Err: fmt.Errorf("unexpected post-login page state %q", landed)}
	}

	var cookies []*network.Cookie
	err = v.browser.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, classifyBrowserErr(err)
	}

	now := time.Now()
	session := &models.AuthSession{
		Distributor: v.profile.Identifier,
		Cookies:     make(map[string]string, len(cookies)),
		IssuedAt:    now,
		ExpiresAt:   now.Add(v.profile.SessionTTL),
		Valid:       true,
	}
	for _, cookie := range cookies {
		session.Cookies[cookie.Name] = cookie.Value
	}
	return session, nil
}

// loginOutcomeJS distinguishes the three observable post-login states.
const loginOutcomeJS = `(() => {
	if (document.querySelector('#account-menu')) return 'account';
	if (document.querySelector('.login-error')) return 'error';
	return 'unknown';
})()`

// scrollProbeJS reports whether the page can still scroll further down.
const scrollProbeJS = `window.innerHeight + window.scrollY < document.body.scrollHeight - 2`

// ListPage loads the catalog on the first call and scrolls one viewport on
// each subsequent call, returning every card currently in the DOM.
func (v *Voltmax) ListPage(ctx context.Context, cursor *Cursor, filters models.Filters) ([]*models.RawListingItem, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, v.profile.Timeout)
	defer cancel()

	// A tab teardown between calls (timeout, cancellation) loses the loaded
	// catalog, so the retry re-navigates; the aggregator absorbs the
	// re-read overlap.
	var actions []chromedp.Action
	if cursor.ScrollDepth == 0 || v.pageLost() {
		actions = append(actions,
			chromedp.Navigate(v.catalogURL(filters)),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	} else {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		)
	}

	var html string
	var canScroll bool
	actions = append(actions,
		chromedp.Sleep(v.settleDelay()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(scrollProbeJS, &canScroll),
	)

	if err := v.browser.Run(opCtx, actions...); err != nil {
		return nil, false, classifyBrowserErr(err)
	}
	v.pageEpoch = v.browser.Teardowns()

	items, err := parseVoltmaxGrid(html)
	if err != nil {
		return nil, false, err
	}

	cursor.ScrollDepth++
	return items, canScroll, nil
}

// pageLost reports whether the tab holding the catalog was torn down since
// the last successful listing read.
func (v *Voltmax) pageLost() bool {
	return v.pageEpoch != v.browser.Teardowns()
}

// parseVoltmaxGrid extracts raw items from a captured catalog DOM snapshot.
func parseVoltmaxGrid(html string) ([]*models.RawListingItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, NavError{Err: fmt.Errorf("parse catalog DOM: %w", err)}
	}
	if doc.Find("div.catalog-grid").Length() == 0 {
		return nil, SelectorError{Selector: "div.catalog-grid"}
	}

	var items []*models.RawListingItem
	doc.Find("div.catalog-grid div.product-tile").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h4.product-name").Text())
		if title == "" {
			return
		}
		item := &models.RawListingItem{
			Code:         strings.TrimSpace(s.AttrOr("data-sku", "")),
			Title:        title,
			PriceText:    strings.TrimSpace(s.Find("span.price-tag").Text()),
			Manufacturer: strings.TrimSpace(s.Find("span.brand").Text()),
			Availability: strings.TrimSpace(s.Find("div.stock-badge").Text()),
			DetailURL:    s.Find("a").AttrOr("href", ""),
			Position:     i,
		}
		if src := s.Find("img").AttrOr("src", ""); src != "" {
			item.ImageURLs = append(item.ImageURLs, src)
		}
		items = append(items, item)
	})
	return items, nil
}

// FetchDetail navigates to one product page by SKU.
func (v *Voltmax) FetchDetail(ctx context.Context, sku string) (*models.RawListingItem, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, v.profile.Timeout)
	defer cancel()

	target := strings.TrimSuffix(v.profile.BaseURL, "/") + "/product/" + url.PathEscape(sku)

	var html string
	err := v.browser.Run(opCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(v.settleDelay()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classifyBrowserErr(err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, NavError{Err: fmt.Errorf("parse detail DOM: %w", err)}
	}
	if doc.Find("div.not-found").Length() > 0 {
		return nil, nil
	}
	detail := doc.Find("div.product-detail")
	if detail.Length() == 0 {
		return nil, SelectorError{Selector: "div.product-detail"}
	}

	item := &models.RawListingItem{
		Code:         strings.TrimSpace(detail.AttrOr("data-sku", sku)),
		Title:        strings.TrimSpace(detail.Find("h1.product-name").Text()),
		PriceText:    strings.TrimSpace(detail.Find("span.price-tag").Text()),
		Category:     strings.TrimSpace(detail.Find("nav.breadcrumb li").Last().Text()),
		Manufacturer: strings.TrimSpace(detail.Find("span.brand").Text()),
		Model:        strings.TrimSpace(detail.Find("span.model").Text()),
		Availability: strings.TrimSpace(detail.Find("div.stock-badge").Text()),
		QuantityText: strings.TrimSpace(detail.Find("span.stock-count").Text()),
		DetailURL:    target,
	}
	detail.Find("div.gallery img").Each(func(_ int, s *goquery.Selection) {
		if src := s.AttrOr("src", ""); src != "" {
			item.ImageURLs = append(item.ImageURLs, src)
		}
	})
	return item, nil
}

// Close tears down the browser process.
func (v *Voltmax) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.browser.Close()
}

func (v *Voltmax) catalogURL(filters models.Filters) string {
	values := url.Values{}
	if filters.Category != "" {
		values.Set("category", filters.Category)
	}
	if filters.Query != "" {
		values.Set("q", filters.Query)
	}
	base := strings.TrimSuffix(v.profile.BaseURL, "/") + "/catalog"
	if encoded := values.Encode(); encoded != "" {
		return base + "?" + encoded
	}
	return base
}

func (v *Voltmax) settleDelay() time.Duration {
	if v.profile.RateLimit > 0 {
		return v.profile.RateLimit
	}
	return 500 * time.Millisecond
}
