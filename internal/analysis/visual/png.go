package visual

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable probes for a Chrome binary once per process.
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		parent, cancel := chromedp.NewContext(ctx)
		defer cancel()
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// RenderPNG screenshots the chart page in headless Chrome.
func RenderPNG(ctx context.Context, c Chart) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, fmt.Errorf("headless chrome unavailable: %w", err)
	}
	width, height := c.Width, c.Height
	if width <= 0 {
		width = chartWidthPx
	}
	if height <= 0 {
		height = chartHeightPx
	}
	return renderHTMLToPNG(ctx, c.HTML, width, height)
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
