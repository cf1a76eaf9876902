package distributor

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
)

var errBrowserClosed = errors.New("browser closed")

// Browser owns one headless Chrome process and the tab all page operations
// run in. A caller timeout or cancellation tears down only the tab; the next
// operation opens a fresh one, so transient timeouts stay retryable.
// Whole-process teardown is reserved for Close. Page-level operations are
// serialized by the adapters; concurrency across distributors comes from
// independent Browser instances.
type Browser struct {
	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	teardowns     uint64
	closed        bool

	newTab func(parent context.Context) (context.Context, context.CancelFunc)
}

// NewBrowser launches a Chrome instance. Headful mode is only useful when
// debugging an adapter against a live portal.
func NewBrowser(userAgent string, headful bool) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1366, 900),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so a missing Chrome binary
	// surfaces here, not on the first page operation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, NavError{Err: err}
	}

	return &Browser{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		newTab: func(parent context.Context) (context.Context, context.CancelFunc) {
			return chromedp.NewContext(parent)
		},
	}, nil
}

// Run executes actions in the current tab, bounded by the caller's context.
// When the caller's context trips, only the tab is discarded; the browser
// process stays up for the retry.
func (b *Browser) Run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := b.tab()
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { b.dropTab(tabCtx) })
	defer stop()

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			b.dropTab(tabCtx)
			return ctx.Err()
		}
		return err
	}
	return nil
}

// tab returns the live tab context, opening a replacement when the prior tab
// was torn down.
func (b *Browser) tab() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBrowserClosed
	}
	if b.tabCtx == nil || b.tabCtx.Err() != nil {
		b.tabCtx, b.tabCancel = b.newTab(b.browserCtx)
	}
	return b.tabCtx, nil
}

// dropTab closes one tab. Calls with a stale handle are no-ops, so the
// AfterFunc and the error path may both fire.
func (b *Browser) dropTab(tabCtx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCtx != tabCtx || b.tabCancel == nil {
		return
	}
	b.tabCancel()
	b.tabCtx = nil
	b.tabCancel = nil
	b.teardowns++
}

// Teardowns counts tab teardowns so far. Adapters compare it across calls to
// detect that page state was lost in between and must be rebuilt.
func (b *Browser) Teardowns() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.teardowns
}

// Close releases the tab, the browser process, and the allocator.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.tabCancel != nil {
		b.tabCancel()
		b.tabCtx = nil
		b.tabCancel = nil
	}
	b.browserCancel()
	b.allocCancel()
	return nil
}

// classifyBrowserErr maps chromedp failures onto the adapter taxonomy.
func classifyBrowserErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NavError{Err: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "net::ERR") || strings.Contains(msg, "page load error") {
		return NavError{Err: err}
	}
	return err
}
