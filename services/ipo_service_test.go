package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingFixture = `{
	"draw": 1,
	"recordsTotal": 5,
	"data": [
		{"name": "<a href='/ipo/acme'>Acme Tech BSE SME</a>", "premium": "35 (14.3%)", "current_status": "open", "script_code": "ACME"},
		{"name": "Beta Foods", "premium": "120", "current_status": "upcoming", "lot_size": 100},
		{"name": {"unexpected": "object"}, "premium": "10"},
		{"name": "Gamma NSE SME", "premium": "N/A", "current_status": "closed", "premium_percentage": 5},
		{"name": "Delta Power", "premium": "12 (6.1%)", "currentStatus": "open"}
	]
}`

func newListingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/ipo", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("start"))
		assert.Equal(t, "50", r.URL.Query().Get("length"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testSourceConfig(baseURL string) config.SourceConfig {
	return config.SourceConfig{
		BaseURL:          baseURL,
		PageSize:         50,
		HTTPTimeout:      5 * time.Second,
		MaxRetryAttempts: 0,
		RetryBaseDelay:   time.Millisecond,
	}
}

func TestFetchAndSyncIPOsSkipsMalformedEntry(t *testing.T) {
	ctx := context.Background()
	srv, _ := newListingServer(t, http.StatusOK, listingFixture)
	store := database.NewMemoryStore()
	service := NewIPOService(store, NewIPOPremiumClient(testSourceConfig(srv.URL)), models.SyncAppend)

	report, err := service.FetchAndSyncIPOs(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 5, report.Fetched)
	assert.Equal(t, 4, report.Created)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 2, report.Skipped[0].Index)

	all, err := store.GetAllIPOs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)

	acme, err := store.SearchIPOs(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, "Acme Tech BSE SME", acme[0].Name)
	assert.Equal(t, models.ExchangeBSESME, acme[0].Exchange)
	assert.Equal(t, "35", *acme[0].Premium)
	assert.InDelta(t, 14.3, *acme[0].PremiumPercentage, 1e-9)

	gamma, err := store.SearchIPOs(ctx, "gamma")
	require.NoError(t, err)
	require.Len(t, gamma, 1)
	assert.Nil(t, gamma[0].Premium)
	assert.Nil(t, gamma[0].PremiumPercentage)
	assert.Equal(t, models.ExchangeNSESME, gamma[0].Exchange)

	stats, err := service.GetIPOStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalIPOs)
	assert.Equal(t, 2, stats.OpenIPOs)
	assert.Equal(t, 1, stats.UpcomingIPOs)
	assert.Equal(t, 1, stats.ClosedIPOs)
	assert.Equal(t, "10.2", stats.AvgPremium)

	snapshot := service.Metrics.Snapshot()
	assert.Equal(t, int64(1), snapshot.SuccessfulRequests)
	assert.Equal(t, int64(1), snapshot.CustomCounters["entries_skipped"])
}

func TestFetchAndSyncIPOsAppendDuplicates(t *testing.T) {
	ctx := context.Background()
	srv, hits := newListingServer(t, http.StatusOK, listingFixture)
	store := database.NewMemoryStore()
	service := NewIPOService(store, NewIPOPremiumClient(testSourceConfig(srv.URL)), models.SyncAppend)

	_, err := service.FetchAndSyncIPOs(ctx)
	require.NoError(t, err)
	_, err = service.FetchAndSyncIPOs(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	all, err := store.GetAllIPOs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestFetchAndSyncIPOsUpsertReconciles(t *testing.T) {
	ctx := context.Background()
	srv, _ := newListingServer(t, http.StatusOK, listingFixture)
	store := database.NewMemoryStore()
	service := NewIPOService(store, NewIPOPremiumClient(testSourceConfig(srv.URL)), models.SyncUpsert)

	first, err := service.FetchAndSyncIPOs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Created)

	second, err := service.FetchAndSyncIPOs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 4, second.Updated)

	all, err := store.GetAllIPOs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestFetchAndSyncIPOsUpstreamFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":     {http.StatusInternalServerError, `{"error":"boom"}`},
		"not found":        {http.StatusNotFound, `not here`},
		"missing data":     {http.StatusOK, `{"draw":1}`},
		"data not array":   {http.StatusOK, `{"data":{"name":"x"}}`},
		"body not json":    {http.StatusOK, `<html></html>`},
		"null data member": {http.StatusOK, `{"data":null}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			srv, _ := newListingServer(t, tc.status, tc.body)
			store := database.NewMemoryStore()
			service := NewIPOService(store, NewIPOPremiumClient(testSourceConfig(srv.URL)), models.SyncAppend)

			report, err := service.FetchAndSyncIPOs(ctx)
			require.Error(t, err)
			assert.True(t, shared.HasCategory(err, shared.ErrorCategoryNetwork), "error: %v", err)
			require.NotNil(t, report)
			assert.Equal(t, 0, report.Created)

			counts, err := store.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, counts.IPOs)
			assert.Equal(t, int64(1), service.Metrics.Snapshot().FailedRequests)
		})
	}
}

func TestFetchIPOListAcceptsAnySuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusNonAuthoritativeInfo, http.StatusPartialContent} {
		srv, _ := newListingServer(t, status, `{"data":[{"name":"Acme"}]}`)
		client := NewIPOPremiumClient(testSourceConfig(srv.URL))

		entries, err := client.FetchIPOList(context.Background())
		require.NoError(t, err, "status %d", status)
		assert.Len(t, entries, 1, "status %d", status)
	}
}

func TestFetchIPOListRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"name":"Acme"}]}`))
	}))
	defer srv.Close()

	cfg := testSourceConfig(srv.URL)
	cfg.MaxRetryAttempts = 2
	client := NewIPOPremiumClient(cfg)

	entries, err := client.FetchIPOList(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int32(2), hits.Load())
}

type staticSource struct {
	entries []json.RawMessage
	err     error
}

func (s staticSource) FetchIPOList(context.Context) ([]json.RawMessage, error) {
	return s.entries, s.err
}

// failingStore rejects writes after the first n creates
type failingStore struct {
	*database.MemoryStore
	remaining int
}

func (s *failingStore) CreateIPO(ctx context.Context, in models.IPOInput) (*models.IPORecord, error) {
	if s.remaining <= 0 {
		return nil, errors.New("disk full")
	}
	s.remaining--
	return s.MemoryStore.CreateIPO(ctx, in)
}

func TestFetchAndSyncIPOsStoreFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: database.NewMemoryStore(), remaining: 1}
	source := staticSource{entries: []json.RawMessage{
		json.RawMessage(`{"name":"One"}`),
		json.RawMessage(`{"name":"Two"}`),
		json.RawMessage(`{"name":"Three"}`),
	}}
	service := NewIPOService(store, source, models.SyncAppend)

	report, err := service.FetchAndSyncIPOs(ctx)
	require.Error(t, err)
	assert.True(t, shared.HasCategory(err, shared.ErrorCategoryDatabase))
	assert.Equal(t, 1, report.Created)

	all, err := store.GetAllIPOs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "One", all[0].Name)
}

func TestFetchAndSyncIPOsHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := database.NewMemoryStore()
	source := staticSource{entries: []json.RawMessage{json.RawMessage(`{"name":"One"}`)}}
	service := NewIPOService(store, source, models.SyncAppend)

	_, err := service.FetchAndSyncIPOs(ctx)
	require.ErrorIs(t, err, context.Canceled)

	counts, _ := store.Counts(context.Background())
	assert.Equal(t, 0, counts.IPOs)
}

func TestGetIPOsSearchTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	service := NewIPOService(store, staticSource{}, models.SyncAppend)

	_, err := store.CreateIPO(ctx, models.IPOInput{Name: "Acme BSE SME", CurrentStatus: models.StatusClosed, Exchange: models.ExchangeBSESME})
	require.NoError(t, err)
	_, err = store.CreateIPO(ctx, models.IPOInput{Name: "Beta", CurrentStatus: models.StatusOpen, Exchange: models.ExchangeMainboard})
	require.NoError(t, err)

	got, err := service.GetIPOs(ctx, "sme", models.StatusOpen)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme BSE SME", got[0].Name)

	open, err := service.GetIPOs(ctx, "", models.StatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Beta", open[0].Name)

	all, err := service.GetIPOs(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
