package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/jobs"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "s3cret"

func newAdminApp(store database.Store, token, feedURL string) *fiber.App {
	contactService := services.NewContactService(store)
	premiumService := services.NewPremiumFeedService(store, config.PremiumFeedConfig{
		URL:           feedURL,
		NameColumn:    0,
		PremiumColumn: 1,
		RenderTimeout: 5 * time.Second,
	})
	ipoService := services.NewIPOService(store, &fakeSource{}, models.SyncAppend)
	syncJob := jobs.NewIPOSyncJob(ipoService)
	limiter := shared.NewPerMinuteRateLimiter("test-sync", 10)

	admin := NewAdminHandler(contactService, jobs.NewPremiumRefreshJob(premiumService))
	performance := NewPerformanceHandler(store, nil, syncJob, limiter, ipoService.Metrics, premiumService.Metrics)

	app := fiber.New()
	group := app.Group("/api/admin", RequireAdminToken(token))
	group.Get("/contacts", admin.GetContacts)
	group.Post("/premium/refresh", admin.TriggerPremiumRefresh)
	group.Get("/metrics", performance.GetPerformanceMetrics)
	return app
}

func adminRequest(t *testing.T, app *fiber.App, method, target, token string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func TestAdminRequiresToken(t *testing.T) {
	app := newAdminApp(database.NewMemoryStore(), adminToken, "")

	for _, token := range []string{"", "wrong"} {
		status, body := adminRequest(t, app, http.MethodGet, "/api/admin/contacts", token)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, string(body))
	}

	status, _ := adminRequest(t, app, http.MethodGet, "/api/admin/contacts", adminToken)
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminRejectsEverythingWithoutConfiguredToken(t *testing.T) {
	app := newAdminApp(database.NewMemoryStore(), "", "")

	status, _ := adminRequest(t, app, http.MethodGet, "/api/admin/metrics", "anything")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminGetContacts(t *testing.T) {
	store := database.NewMemoryStore()
	_, err := store.CreateContact(context.Background(), models.ContactInput{Name: "A", Email: "a@example.com", Message: "hi"})
	require.NoError(t, err)
	app := newAdminApp(store, adminToken, "")

	status, body := adminRequest(t, app, http.MethodGet, "/api/admin/contacts", adminToken)
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		Data  []models.ContactMessage `json:"data"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "a@example.com", resp.Data[0].Email)
}

func TestAdminPremiumRefresh(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<table><tbody><tr><td>Acme Tech IPO</td><td>30 (12%)</td></tr></tbody></table>`))
	}))
	defer feed.Close()

	store := database.NewMemoryStore()
	rec, err := store.CreateIPO(context.Background(), models.IPOInput{Name: "Acme Tech", Exchange: models.ExchangeMainboard, CurrentStatus: models.StatusOpen})
	require.NoError(t, err)
	app := newAdminApp(store, adminToken, feed.URL)

	status, body := adminRequest(t, app, http.MethodPost, "/api/admin/premium/refresh", adminToken)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp struct {
		Result models.PremiumRefreshResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 1, resp.Result.RecordsUpdated)

	got, err := store.GetIPOByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "30", *got.Premium)
}

func TestAdminPremiumRefreshDisabled(t *testing.T) {
	app := newAdminApp(database.NewMemoryStore(), adminToken, "")

	status, _ := adminRequest(t, app, http.MethodPost, "/api/admin/premium/refresh", adminToken)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestAdminMetrics(t *testing.T) {
	store := database.NewMemoryStore()
	seedIPOs(t, store)
	app := newAdminApp(store, adminToken, "")

	status, body := adminRequest(t, app, http.MethodGet, "/api/admin/metrics", adminToken)
	require.Equal(t, http.StatusOK, status)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Contains(t, resp, "store")
	assert.Contains(t, resp, "services")
	assert.Contains(t, resp, "sync")
	assert.Contains(t, resp, "sync_triggers")
	assert.NotContains(t, resp, "database_stats")

	var counts database.StoreCounts
	require.NoError(t, json.Unmarshal(resp["store"], &counts))
	assert.Equal(t, 3, counts.IPOs)
}
