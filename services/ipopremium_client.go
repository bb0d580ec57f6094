package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// listQueryTemplate is the DataTables query the listing page issues over XHR
const listQueryTemplate = "/ipo?draw=1" +
	"&columns%%5B0%%5D%%5Bdata%%5D=name&columns%%5B0%%5D%%5Bname%%5D=&columns%%5B0%%5D%%5Bsearchable%%5D=true" +
	"&columns%%5B0%%5D%%5Borderable%%5D=false&columns%%5B0%%5D%%5Bsearch%%5D%%5Bvalue%%5D=&columns%%5B0%%5D%%5Bsearch%%5D%%5Bregex%%5D=false" +
	"&columns%%5B1%%5D%%5Bdata%%5D=premium&columns%%5B1%%5D%%5Bname%%5D=&columns%%5B1%%5D%%5Bsearchable%%5D=false" +
	"&columns%%5B1%%5D%%5Borderable%%5D=false&columns%%5B1%%5D%%5Bsearch%%5D%%5Bvalue%%5D=&columns%%5B1%%5D%%5Bsearch%%5D%%5Bregex%%5D=false" +
	"&order%%5B0%%5D%%5Bcolumn%%5D=0&order%%5B0%%5D%%5Bdir%%5D=asc" +
	"&start=%d&length=%d&search%%5Bvalue%%5D=&search%%5Bregex%%5D=false"

const maxListingBodySize = 32 << 20

// IPOSource yields the raw entries of the upstream IPO listing
type IPOSource interface {
	FetchIPOList(ctx context.Context) ([]json.RawMessage, error)
}

// IPOPremiumClient fetches the listing from ipopremium.in in a single page
type IPOPremiumClient struct {
	BaseURL          string
	PageSize         int
	Timeout          time.Duration
	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	RateLimiter      *shared.RequestRateLimiter
	transport        *http.Transport
}

func NewIPOPremiumClient(cfg config.SourceConfig) *IPOPremiumClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &IPOPremiumClient{
		BaseURL:          cfg.BaseURL,
		PageSize:         pageSize,
		Timeout:          cfg.HTTPTimeout,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		RateLimiter:      shared.NewRequestRateLimiter("ipopremium", cfg.PolitenessDelay, 1),
		transport:        shared.NewPooledTransport(),
	}
}

// ListURL returns the listing request URL for the first page
func (c *IPOPremiumClient) ListURL() string {
	return c.BaseURL + fmt.Sprintf(listQueryTemplate, 0, c.PageSize)
}

// FetchIPOList issues the listing request and returns the entries of the
// envelope's data array. A non-2xx status or a missing or non-array data
// field is reported as a network ServiceError.
func (c *IPOPremiumClient) FetchIPOList(ctx context.Context) ([]json.RawMessage, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "IPOPremiumClient",
		"url":       c.ListURL(),
	})

	var body []byte
	err := shared.RetryWithBackoff(ctx, c.MaxRetryAttempts, c.RetryBaseDelay, "FetchIPOList", func() error {
		if err := c.RateLimiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		body, err = c.fetchOnce(ctx)
		return err
	})
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryNetwork, "FETCH_FAILED", "IPOPremiumClient", "FetchIPOList", true)
	}

	entries, err := decodeListingEnvelope(body)
	if err != nil {
		return nil, err
	}

	logger.WithField("entries", len(entries)).Info("Fetched IPO listing")
	return entries, nil
}

func (c *IPOPremiumClient) fetchOnce(ctx context.Context) ([]byte, error) {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	collector.MaxBodySize = maxListingBodySize
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(c.transport)
	if c.Timeout > 0 {
		collector.SetRequestTimeout(c.Timeout)
	}

	referer := c.BaseURL + "/"
	collector.OnRequest(func(r *colly.Request) {
		shared.SetXHRHeaders(*r.Headers, referer)
	})

	var (
		body       []byte
		statusCode int
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	if err := collector.Visit(c.ListURL()); err != nil && statusCode == 0 {
		return nil, shared.NewTransportError("REQUEST_FAILED", "upstream request failed", "IPOPremiumClient", "FetchIPOList", err)
	}
	if statusCode < 200 || statusCode > 299 {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryNetwork,
			"UPSTREAM_STATUS",
			fmt.Sprintf("upstream responded with HTTP %d", statusCode),
			"IPOPremiumClient",
			"FetchIPOList",
			statusCode >= 500 || statusCode == http.StatusTooManyRequests,
			nil,
		)
	}
	return body, nil
}

// decodeListingEnvelope extracts the data array without decoding its entries,
// so that a single malformed entry cannot fail the whole batch
func decodeListingEnvelope(body []byte) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryNetwork, "MALFORMED_ENVELOPE", "upstream response is not a JSON object",
			"IPOPremiumClient", "FetchIPOList", false, err,
		)
	}

	data, ok := envelope["data"]
	if !ok {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryNetwork, "MISSING_DATA", "upstream response has no data array",
			"IPOPremiumClient", "FetchIPOList", false, nil,
		)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryNetwork, "MALFORMED_DATA", "upstream data field is not an array",
			"IPOPremiumClient", "FetchIPOList", false, nil,
		)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryNetwork, "MALFORMED_DATA", "upstream data array could not be decoded",
			"IPOPremiumClient", "FetchIPOList", false, err,
		)
	}
	return entries, nil
}
