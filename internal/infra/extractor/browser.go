package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"newsflow/internal/infra/httpclient"
)

// Browser wraps one shared headless Chrome instance. Each render opens a new
// page context off the shared allocator and closes it on every exit path.
type Browser struct {
	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc

	// NavigationTimeout bounds one page load including the network-idle wait.
	NavigationTimeout time.Duration
}

// NewBrowser creates the shared browser allocator. The Chrome process starts
// lazily on first render.
func NewBrowser() *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(httpclient.RandomUserAgent()),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		allocCtx:          allocCtx,
		cancel:            cancel,
		NavigationTimeout: 45 * time.Second,
	}
}

// Close terminates the shared browser.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// RenderHTML navigates to the URL in a fresh page, waits for the document to
// settle, and returns the rendered outer HTML.
func (b *Browser) RenderHTML(ctx context.Context, url string) (string, error) {
	return b.render(ctx, url, "body", nil)
}

// RenderAndScroll renders the page and performs scroll cycles that trigger
// lazy-loading widgets (bottom, top, then a few up-and-back passes).
func (b *Browser) RenderAndScroll(ctx context.Context, url, waitSelector string) (string, error) {
	scroll := []chromedp.Action{
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(700 * time.Millisecond),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight/2)`, nil),
		chromedp.Sleep(400 * time.Millisecond),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(700 * time.Millisecond),
	}
	return b.render(ctx, url, waitSelector, scroll)
}

func (b *Browser) render(ctx context.Context, url, waitSelector string, extra []chromedp.Action) (html string, err error) {
	b.mu.Lock()
	alloc := b.allocCtx
	b.mu.Unlock()
	if alloc == nil {
		return "", fmt.Errorf("browser closed")
	}

	pageCtx, cancelPage := chromedp.NewContext(alloc)
	// The page is closed on all exit paths, including timeout.
	defer cancelPage()

	timeout := b.NavigationTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	runCtx, cancelRun := context.WithTimeout(pageCtx, timeout)
	defer cancelRun()

	actions := []chromedp.Action{
		// Anti-automation shim: hide the webdriver flag before any page
		// script runs.
		chromedp.Evaluate(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`, nil),
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.Sleep(800 * time.Millisecond),
	}
	actions = append(actions, extra...)
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}
