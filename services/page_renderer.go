package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// PageRenderer returns the HTML of a page, executing scripts if the implementation can
type PageRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// NewPageRenderer picks a renderer by name; unknown names fall back to colly
func NewPageRenderer(name string, timeout time.Duration) PageRenderer {
	switch strings.ToLower(name) {
	case "chromedp", "chrome":
		return &ChromeRenderer{Timeout: timeout, WaitSelector: "table tbody tr"}
	default:
		return &CollyRenderer{Timeout: timeout}
	}
}

// CollyRenderer fetches static HTML with browser-like headers
type CollyRenderer struct {
	Timeout time.Duration
}

func (r *CollyRenderer) Render(ctx context.Context, url string) (string, error) {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	if r.Timeout > 0 {
		collector.SetRequestTimeout(r.Timeout)
	}
	collector.OnRequest(func(req *colly.Request) {
		shared.SetBrowserLikeHeaders(*req.Headers, shared.AcceptHTML)
	})

	var html string
	collector.OnResponse(func(resp *colly.Response) {
		html = string(resp.Body)
	})

	if err := collector.Visit(url); err != nil {
		return "", shared.NewTransportError("RENDER_FAILED", fmt.Sprintf("failed to fetch %s", url), "CollyRenderer", "Render", err)
	}
	return html, nil
}

// ChromeRenderer drives a headless Chrome for pages that build their tables in JavaScript
type ChromeRenderer struct {
	Timeout      time.Duration
	WaitSelector string
}

func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-images", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(shared.BrowserUserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	browserCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.EmulateViewport(1920, 1080),
		chromedp.Navigate(url),
	}
	if r.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(r.WaitSelector, chromedp.ByQuery))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	start := time.Now()
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", shared.NewTransportError("RENDER_FAILED", fmt.Sprintf("headless render of %s failed", url), "ChromeRenderer", "Render", err)
	}

	logrus.WithFields(logrus.Fields{
		"component": "ChromeRenderer",
		"url":       url,
		"bytes":     len(html),
		"took":      time.Since(start),
	}).Debug("Rendered page")
	return html, nil
}
