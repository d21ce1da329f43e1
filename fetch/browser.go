package fetch

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"zillow-scraper/models"
	"zillow-scraper/utils"
)

// BrowserClient renders pages in headless Chrome and returns the resulting
// document HTML. It is the fallback backend for pages that only populate
// their data blobs client-side.
type BrowserClient struct {
	allocCtx     context.Context
	cancelSilent context.CancelFunc
	cancelAlloc  context.CancelFunc
	timeout      time.Duration
	retry        *utils.RetryConfig
	logger       *utils.Logger
}

// BrowserOptions configures a BrowserClient.
type BrowserOptions struct {
	ChromeBin   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	Logger      *utils.Logger
}

// NewBrowserClient starts a headless Chrome allocator shared by all
// fetches. Close must be called when the client is no longer needed.
func NewBrowserClient(opts BrowserOptions) *BrowserClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := opts.MaxRetries
	if retries < 1 {
		retries = 3
	}
	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger()
	}

	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		execOpts = append(execOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), execOpts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	return &BrowserClient{
		allocCtx:     silentCtx,
		cancelSilent: cancelSilent,
		cancelAlloc:  cancelAlloc,
		timeout:      timeout,
		retry: &utils.RetryConfig{
			MaxAttempts: retries,
			BaseDelay:   backoff,
			Logger:      logger,
		},
		logger: logger,
	}
}

// Fetch navigates to url in a fresh tab and returns the rendered HTML.
func (c *BrowserClient) Fetch(ctx context.Context, url string) (string, error) {
	var html string

	err := c.retry.Do("render "+url, func() error {
		tabCtx, cancel := chromedp.NewContext(c.allocCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
		defer cancelTimeout()

		if err := ctx.Err(); err != nil {
			return utils.Permanent(&Failure{Kind: models.FailTimeout, Detail: err.Error()})
		}

		err := chromedp.Run(tabCtx,
			chromedp.Navigate(url),
			chromedp.Sleep(3*time.Second),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			if tabCtx.Err() == context.DeadlineExceeded {
				return &Failure{Kind: models.FailTimeout, Detail: err.Error()}
			}
			return &Failure{Kind: models.FailHTTPError, Detail: err.Error()}
		}
		return nil
	})
	if err != nil {
		return "", wrapFailure(err)
	}
	return html, nil
}

// Close tears down the browser allocator.
func (c *BrowserClient) Close() {
	c.cancelSilent()
	c.cancelAlloc()
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

var _ Client = (*BrowserClient)(nil)
