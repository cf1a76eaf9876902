package distributor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/gocolly/colly/v2"
)

func init() {
	Register("ferragold", NewFerragold)
}

// Ferragold is the adapter for the Ferragold B2B portal: server-rendered
// pages with offset pagination and a classic form login. One cookie-jar
// HTTP session per adapter; operations are serialized.
type Ferragold struct {
	profile   *config.DistributorProfile
	collector *colly.Collector

	mu sync.Mutex

	// per-operation scratch state, reset before each visit
	pageItems  []*models.RawListingItem
	detailItem *models.RawListingItem
	sawCatalog bool
	hasNext    bool
	loggedIn   bool
	loginError string
	lastStatus int
	lastErr    error
}

// NewFerragold builds the adapter from a distributor profile.
func NewFerragold(profile *config.DistributorProfile) (Adapter, error) {
	parsed, err := url.Parse(profile.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(profile.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(profile.Timeout)
	collector.IgnoreRobotsTxt = true

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       profile.RateLimit,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Ferragold{profile: profile, collector: collector}
	f.installHandlers()
	return f, nil
}

func (f *Ferragold) installHandlers() {
	c := f.collector

	c.OnResponse(func(r *colly.Response) {
		f.lastStatus = r.StatusCode
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		f.lastStatus = status
		f.lastErr = classifyHTTPErr(err, status)
	})

	// Post-login markers.
	c.OnHTML("a[href='/sair']", func(e *colly.HTMLElement) {
		f.loggedIn = true
	})
	c.OnHTML("div.erro-login", func(e *colly.HTMLElement) {
		f.loginError = strings.TrimSpace(e.Text)
	})

	// Catalog listing.
	c.OnHTML("section#catalogo", func(e *colly.HTMLElement) {
		f.sawCatalog = true
	})
	c.OnHTML("section#catalogo div.produto", func(e *colly.HTMLElement) {
		item := &models.RawListingItem{
			Code:         strings.TrimSpace(e.Attr("data-codigo")),
			Title:        strings.TrimSpace(e.ChildText("h3.nome")),
			PriceText:    strings.TrimSpace(e.ChildText("span.preco")),
			Category:     strings.TrimSpace(e.ChildText("span.categoria")),
			Manufacturer: strings.TrimSpace(e.ChildText("span.marca")),
			Availability: strings.TrimSpace(e.ChildText("span.estoque")),
			DetailURL:    e.Request.AbsoluteURL(e.ChildAttr("a.detalhe", "href")),
			Position:     len(f.pageItems),
		}
		if img := e.Request.AbsoluteURL(e.ChildAttr("img", "src")); img != "" {
			item.ImageURLs = append(item.ImageURLs, img)
		}
		if item.Title == "" {
			return
		}
		f.pageItems = append(f.pageItems, item)
	})
	c.OnHTML("nav.paginacao a.proxima", func(e *colly.HTMLElement) {
		f.hasNext = true
	})

	// Product detail.
	c.OnHTML("div#produto-detalhe", func(e *colly.HTMLElement) {
		item := &models.RawListingItem{
			Code:         strings.TrimSpace(e.Attr("data-codigo")),
			Title:        strings.TrimSpace(e.ChildText("h1.nome")),
			PriceText:    strings.TrimSpace(e.ChildText("span.preco")),
			Category:     strings.TrimSpace(e.ChildText("span.categoria")),
			Manufacturer: strings.TrimSpace(e.ChildText("span.marca")),
			Model:        strings.TrimSpace(e.ChildText("span.modelo")),
			Availability: strings.TrimSpace(e.ChildText("span.estoque")),
			QuantityText: strings.TrimSpace(e.ChildText("span.qtd-estoque")),
			DetailURL:    e.Request.URL.String(),
		}
		for _, img := range e.ChildAttrs("div.galeria img", "src") {
			item.ImageURLs = append(item.ImageURLs, e.Request.AbsoluteURL(img))
		}
		f.detailItem = item
	})
}

func (f *Ferragold) resetScratch() {
	f.pageItems = nil
	f.detailItem = nil
	f.sawCatalog = false
	f.hasNext = false
	f.loginError = ""
	f.lastStatus = 0
	f.lastErr = nil
}

// Authenticate posts the login form and verifies the post-login page.
func (f *Ferragold) Authenticate(ctx context.Context, email, password string) (*models.AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if email == "" || password == "" {
		return nil, AuthError{Err: errors.New("missing credentials")}
	}

	loginURL := f.profile.LoginURL
	if loginURL == "" {
		loginURL = strings.TrimSuffix(f.profile.BaseURL, "/") + "/login"
	}

	f.resetScratch()
	f.loggedIn = false
	err := f.collector.Post(loginURL, map[string]string{
		f.profile.Credentials.Email:    email,
		f.profile.Credentials.Password: password,
	})
	f.collector.Wait()

	// Visit errors for any non-2xx status; the OnError handler already
	// classified it with the real status code.
	if f.lastErr != nil {
		if f.lastStatus == http.StatusUnauthorized || f.lastStatus == http.StatusForbidden {
			return nil, AuthError{Err: f.lastErr}
		}
		return nil, f.lastErr
	}
	if err != nil {
		return nil, classifyHTTPErr(err, f.lastStatus)
	}
	if f.loginError != "" {
		return nil, AuthError{Err: fmt.Errorf("portal rejected login: %s", f.loginError)}
	}
	if !f.loggedIn {
		return nil, AuthError{Err: errors.New("unrecognized post-login page")}
	}

	now := time.Now()
	session := &models.AuthSession{
		Distributor: f.profile.Identifier,
		Cookies:     map[string]string{},
		IssuedAt:    now,
		ExpiresAt:   now.Add(f.profile.SessionTTL),
		Valid:       true,
	}
	for _, cookie := range f.collector.Cookies(f.profile.BaseURL) {
		session.Cookies[cookie.Name] = cookie.Value
	}
	return session, nil
}

// ListPage fetches one catalog page and advances the cursor's page number.
func (f *Ferragold) ListPage(ctx context.Context, cursor *Cursor, filters models.Filters) ([]*models.RawListingItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	page := cursor.Page
	if page <= 0 {
		page = 1
	}

	f.resetScratch()
	err := f.collector.Visit(f.listingURL(page, filters))
	f.collector.Wait()

	if f.lastErr != nil {
		return nil, false, f.lastErr
	}
	if err != nil {
		return nil, false, classifyHTTPErr(err, f.lastStatus)
	}
	if !f.sawCatalog {
		return nil, false, SelectorError{Selector: "section#catalogo"}
	}

	cursor.Page = page + 1
	cursor.Offset += len(f.pageItems)

	items := f.pageItems
	f.pageItems = nil
	return items, f.hasNext, nil
}

// FetchDetail fetches one product page by site code.
func (f *Ferragold) FetchDetail(ctx context.Context, sku string) (*models.RawListingItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.resetScratch()
	target := strings.TrimSuffix(f.profile.BaseURL, "/") + "/produto/" + url.PathEscape(sku)
	err := f.collector.Visit(target)
	f.collector.Wait()

	if f.lastStatus == http.StatusNotFound {
		return nil, nil
	}
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	if err != nil {
		return nil, classifyHTTPErr(err, f.lastStatus)
	}
	if f.detailItem == nil {
		return nil, SelectorError{Selector: "div#produto-detalhe"}
	}
	return f.detailItem, nil
}

// Close is a no-op for the HTTP-backed adapter; the transport owns no
// long-lived process.
func (f *Ferragold) Close() error {
	f.collector.Wait()
	return nil
}

func (f *Ferragold) listingURL(page int, filters models.Filters) string {
	values := url.Values{}
	values.Set("pagina", fmt.Sprint(page))
	if filters.Category != "" {
		values.Set("categoria", filters.Category)
	}
	if filters.Query != "" {
		values.Set("busca", filters.Query)
	}
	return strings.TrimSuffix(f.profile.BaseURL, "/") + "/catalogo?" + values.Encode()
}

// classifyHTTPErr maps transport failures onto the adapter taxonomy.
func classifyHTTPErr(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NavError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NavError{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NavError{Err: err}
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return AuthError{Err: err}
	}
	if statusCode >= http.StatusInternalServerError {
		return NavError{Err: err}
	}
	return err
}
