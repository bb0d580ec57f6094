package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/sirupsen/logrus"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

	// words that differ between listing sites for the same issue
	premiumKeyNoise = map[string]bool{
		"ipo": true, "ltd": true, "limited": true, "the": true,
		"bse": true, "nse": true, "sme": true, "mainboard": true,
	}
)

// PremiumFeedService refreshes grey market premiums from an HTML premium table
type PremiumFeedService struct {
	Store         database.Store
	Renderer      PageRenderer
	URL           string
	NameColumn    int
	PremiumColumn int
	Metrics       *shared.ServiceMetrics
	now           func() time.Time
}

func NewPremiumFeedService(store database.Store, cfg config.PremiumFeedConfig) *PremiumFeedService {
	return &PremiumFeedService{
		Store:         store,
		Renderer:      NewPageRenderer(cfg.Renderer, cfg.RenderTimeout),
		URL:           cfg.URL,
		NameColumn:    cfg.NameColumn,
		PremiumColumn: cfg.PremiumColumn,
		Metrics:       shared.NewServiceMetrics("PremiumFeedService"),
		now:           time.Now,
	}
}

// Enabled reports whether a feed URL is configured
func (s *PremiumFeedService) Enabled() bool {
	return s.URL != ""
}

// Refresh renders the feed page, parses every premium row and writes the
// premium onto each stored record whose name matches the row.
func (s *PremiumFeedService) Refresh(ctx context.Context) (result *models.PremiumRefreshResult, err error) {
	start := s.now()
	defer func() {
		s.Metrics.RecordRequest(err, time.Since(start))
	}()

	if !s.Enabled() {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryConfiguration, "FEED_DISABLED", "premium feed URL is not configured",
			"PremiumFeedService", "Refresh", false, nil,
		)
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "PremiumFeedService",
		"url":       s.URL,
	})

	html, err := s.Renderer.Render(ctx, s.URL)
	if err != nil {
		return nil, err
	}

	quotes, err := ParsePremiumTable(html, s.NameColumn, s.PremiumColumn, s.URL, start)
	if err != nil {
		return nil, err
	}

	records, err := s.Store.GetAllIPOs(ctx)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_FAILED", "PremiumFeedService", "Refresh", true)
	}
	byKey := make(map[string][]int64, len(records))
	for _, r := range records {
		key := PremiumMatchKey(r.Name)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], r.ID)
	}

	result = &models.PremiumRefreshResult{RowsParsed: len(quotes)}
	updatedAt := s.now()
	for _, quote := range quotes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		key := PremiumMatchKey(quote.IPOName)
		ids := byKey[key]
		if key == "" || len(ids) == 0 {
			result.Unmatched = append(result.Unmatched, quote.IPOName)
			continue
		}

		premium := quote.Premium
		ts := updatedAt
		patch := models.IPOPatch{
			Premium:            &premium,
			PremiumPercentage:  quote.PremiumPercentage,
			PremiumLastUpdated: &ts,
		}
		for _, id := range ids {
			updated, err := s.Store.UpdateIPO(ctx, id, patch)
			if err != nil {
				return result, shared.WrapError(err, shared.ErrorCategoryDatabase, "UPDATE_FAILED", "PremiumFeedService", "Refresh", true)
			}
			if updated != nil {
				result.RecordsUpdated++
			}
		}
	}

	result.Duration = time.Since(start)
	s.Metrics.AddCustomCounter("records_updated", int64(result.RecordsUpdated))

	logger.WithFields(logrus.Fields{
		"rows_parsed":     result.RowsParsed,
		"records_updated": result.RecordsUpdated,
		"unmatched":       len(result.Unmatched),
		"took":            result.Duration,
	}).Info("Premium refresh completed")
	return result, nil
}

// ParsePremiumTable reads premium quotes out of every table body row on the page.
// Rows without a parseable premium are dropped.
func ParsePremiumTable(html string, nameColumn, premiumColumn int, source string, fetchedAt time.Time) ([]models.PremiumQuote, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryProcessing, "HTML_PARSE_FAILED", "premium page could not be parsed",
			"PremiumFeedService", "ParsePremiumTable", false, err,
		)
	}

	needed := nameColumn
	if premiumColumn > needed {
		needed = premiumColumn
	}

	var quotes []models.PremiumQuote
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= needed {
			return
		}

		name := CleanText(cells.Eq(nameColumn).Text())
		rawPremium := CleanText(cells.Eq(premiumColumn).Text())
		if name == "" {
			return
		}

		premium, percentage := ParsePremium(rawPremium)
		if premium == nil {
			return
		}

		quotes = append(quotes, models.PremiumQuote{
			IPOName:           name,
			Premium:           *premium,
			PremiumPercentage: percentage,
			RawText:           rawPremium,
			DataSource:        source,
			LastUpdated:       fetchedAt,
		})
	})
	return quotes, nil
}

// PremiumMatchKey reduces a company name to the words that identify the issuer
func PremiumMatchKey(name string) string {
	words := strings.Fields(nonAlphanumeric.ReplaceAllString(strings.ToLower(CleanText(name)), " "))
	kept := words[:0]
	for _, w := range words {
		if !premiumKeyNoise[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
