package shared

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// BrowserUserAgent is the desktop Chrome user agent the upstream sites accept
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Accept headers for the two kinds of pages we scrape
const (
	AcceptJSON = "application/json, text/javascript, */*; q=0.01"
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// NewPooledTransport returns a transport with connection pooling tuned for a few upstream hosts
func NewPooledTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SetBrowserLikeHeaders configures request headers to mimic browser behavior
func SetBrowserLikeHeaders(headers http.Header, acceptHeader string) {
	headers.Set("User-Agent", BrowserUserAgent)
	headers.Set("Accept", acceptHeader)
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Pragma", "no-cache")
}

// SetXHRHeaders adds the headers a same-origin XMLHttpRequest from referer would carry
func SetXHRHeaders(headers http.Header, referer string) {
	SetBrowserLikeHeaders(headers, AcceptJSON)
	headers.Set("Referer", referer)
	headers.Set("X-Requested-With", "XMLHttpRequest")
}

// RetryWithBackoff runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. Backoff doubles from baseDelay.
func RetryWithBackoff(ctx context.Context, maxRetryAttempts int, baseDelay time.Duration, operation string, fn func() error) error {
	logger := logrus.WithFields(logrus.Fields{
		"component": "HTTPClient",
		"operation": operation,
	})

	var lastErr error
	for attemptNumber := 0; attemptNumber <= maxRetryAttempts; attemptNumber++ {
		if attemptNumber > 0 {
			backoff := baseDelay * time.Duration(1<<uint(attemptNumber-1))
			jitter := time.Duration(float64(backoff) * 0.1 * (0.5 + 0.5*float64(attemptNumber%3)/2))

			logger.WithFields(logrus.Fields{
				"attempt":          attemptNumber + 1,
				"backoff_duration": backoff + jitter,
			}).Debug("Retrying request after backoff")

			timer := time.NewTimer(backoff + jitter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !IsRetryableError(lastErr) {
			logger.WithError(lastErr).Debug("Request failed with non-retryable error")
			return lastErr
		}
		logger.WithError(lastErr).WithField("attempt", attemptNumber+1).Debug("Request attempt failed")
	}

	totalAttempts := maxRetryAttempts + 1
	logger.WithFields(logrus.Fields{
		"total_attempts": totalAttempts,
		"final_error":    lastErr,
	}).Warn("Request failed after all retry attempts")

	return fmt.Errorf("request failed after %d attempts: %w", totalAttempts, lastErr)
}
