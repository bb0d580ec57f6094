package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const premiumPage = `<html><body>
<table>
	<thead><tr><th>IPO</th><th>GMP</th><th>Price</th></tr></thead>
	<tbody>
		<tr><td><a href="/acme">Acme Tech IPO</a></td><td>40 (16.0%)</td><td>250</td></tr>
		<tr><td>Beta Foods Limited</td><td>&nbsp;15&nbsp;</td><td>90</td></tr>
		<tr><td>Unknown Listing</td><td>8 (2%)</td><td>400</td></tr>
		<tr><td>No Premium Co</td><td>-</td><td>100</td></tr>
		<tr><td>Short row</td></tr>
	</tbody>
</table>
</body></html>`

func TestParsePremiumTable(t *testing.T) {
	fetchedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	quotes, err := ParsePremiumTable(premiumPage, 0, 1, "test-feed", fetchedAt)
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.Equal(t, "Acme Tech IPO", quotes[0].IPOName)
	assert.Equal(t, "40", quotes[0].Premium)
	require.NotNil(t, quotes[0].PremiumPercentage)
	assert.InDelta(t, 16.0, *quotes[0].PremiumPercentage, 1e-9)
	assert.Equal(t, "test-feed", quotes[0].DataSource)
	assert.Equal(t, fetchedAt, quotes[0].LastUpdated)

	assert.Equal(t, "Beta Foods Limited", quotes[1].IPOName)
	assert.Equal(t, "15", quotes[1].Premium)
	assert.Nil(t, quotes[1].PremiumPercentage)

	assert.Equal(t, "Unknown Listing", quotes[2].IPOName)
}

func TestPremiumMatchKey(t *testing.T) {
	assert.Equal(t, "acme tech", PremiumMatchKey("Acme Tech IPO"))
	assert.Equal(t, "acme tech", PremiumMatchKey("Acme Tech Ltd. BSE SME"))
	assert.Equal(t, "beta foods", PremiumMatchKey("Beta Foods Limited"))
	assert.Equal(t, "", PremiumMatchKey("IPO Ltd"))
	assert.Equal(t, "", PremiumMatchKey(""))
}

func TestPremiumFeedRefreshUpdatesMatchingRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(premiumPage))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := database.NewMemoryStore()
	acme, err := store.CreateIPO(ctx, models.IPOInput{Name: "Acme Tech BSE SME", Exchange: models.ExchangeBSESME, CurrentStatus: models.StatusOpen})
	require.NoError(t, err)
	beta, err := store.CreateIPO(ctx, models.IPOInput{Name: "Beta Foods Ltd", Exchange: models.ExchangeMainboard, CurrentStatus: models.StatusUpcoming})
	require.NoError(t, err)
	untouched, err := store.CreateIPO(ctx, models.IPOInput{Name: "Gamma Ltd", Exchange: models.ExchangeMainboard, CurrentStatus: models.StatusOpen})
	require.NoError(t, err)

	service := NewPremiumFeedService(store, config.PremiumFeedConfig{
		URL:           srv.URL,
		Renderer:      "colly",
		NameColumn:    0,
		PremiumColumn: 1,
		RenderTimeout: 5 * time.Second,
	})
	require.True(t, service.Enabled())

	result, err := service.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowsParsed)
	assert.Equal(t, 2, result.RecordsUpdated)
	assert.Equal(t, []string{"Unknown Listing"}, result.Unmatched)

	got, err := store.GetIPOByID(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "40", *got.Premium)
	assert.InDelta(t, 16.0, *got.PremiumPercentage, 1e-9)
	assert.NotNil(t, got.PremiumLastUpdated)

	got, err = store.GetIPOByID(ctx, beta.ID)
	require.NoError(t, err)
	assert.Equal(t, "15", *got.Premium)
	assert.Nil(t, got.PremiumPercentage)

	got, err = store.GetIPOByID(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Premium)

	stats, err := NewIPOService(store, staticSource{}, models.SyncAppend).GetIPOStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "16.0", stats.AvgPremium)
}

func TestPremiumFeedRefreshDisabled(t *testing.T) {
	service := NewPremiumFeedService(database.NewMemoryStore(), config.PremiumFeedConfig{})
	assert.False(t, service.Enabled())

	_, err := service.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, shared.HasCategory(err, shared.ErrorCategoryConfiguration))
}

func TestPremiumFeedRefreshUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	service := NewPremiumFeedService(database.NewMemoryStore(), config.PremiumFeedConfig{URL: srv.URL, PremiumColumn: 1})
	_, err := service.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, shared.HasCategory(err, shared.ErrorCategoryNetwork))
	assert.Equal(t, int64(1), service.Metrics.Snapshot().FailedRequests)
}

func TestNewPageRenderer(t *testing.T) {
	assert.IsType(t, &ChromeRenderer{}, NewPageRenderer("chromedp", time.Second))
	assert.IsType(t, &CollyRenderer{}, NewPageRenderer("colly", time.Second))
	assert.IsType(t, &CollyRenderer{}, NewPageRenderer("", time.Second))
}
