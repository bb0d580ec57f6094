package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock returns a fixed time until advanced
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleInput(name string) models.IPOInput {
	price := "100.50"
	lot := 140
	return models.IPOInput{
		Name:          name,
		ScriptCode:    "",
		MinPrice:      &price,
		LotSize:       &lot,
		OpenDate:      "Jan 10",
		CloseDate:     "Jan 12",
		CurrentStatus: models.StatusOpen,
		Exchange:      models.ExchangeMainboard,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := NewMemoryStoreWithClock(clock.Now)

	created, err := store.CreateIPO(ctx, sampleInput("Acme Ltd"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, clock.Now(), created.CreatedAt)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	fetched, err := store.GetIPOByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, *created, *fetched)
	assert.Equal(t, "100.50", *fetched.MinPrice)

	missing, err := store.GetIPOByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	in := sampleInput("Acme Ltd")
	created, err := store.CreateIPO(ctx, in)
	require.NoError(t, err)

	*in.MinPrice = "1.00"
	*created.LotSize = 1
	created.Name = "changed"

	fetched, err := store.GetIPOByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", fetched.Name)
	assert.Equal(t, "100.50", *fetched.MinPrice)
	assert.Equal(t, 140, *fetched.LotSize)
}

func TestMemoryStoreOrdering(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := NewMemoryStoreWithClock(clock.Now)

	// a and b share a timestamp, c is newer
	_, err := store.CreateIPO(ctx, sampleInput("a"))
	require.NoError(t, err)
	_, err = store.CreateIPO(ctx, sampleInput("b"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = store.CreateIPO(ctx, sampleInput("c"))
	require.NoError(t, err)

	all, err := store.GetAllIPOs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, names(all))
}

func TestMemoryStoreFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	open := sampleInput("Acme Tech BSE SME")
	open.Exchange = models.ExchangeBSESME
	upcoming := sampleInput("Beta Foods")
	upcoming.CurrentStatus = models.StatusUpcoming
	upcoming.ScriptCode = "BETASME"
	closed := sampleInput("Gamma Ltd")
	closed.CurrentStatus = models.StatusClosed

	for _, in := range []models.IPOInput{open, upcoming, closed} {
		_, err := store.CreateIPO(ctx, in)
		require.NoError(t, err)
	}

	byStatus, err := store.GetIPOsByStatus(ctx, models.StatusUpcoming)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta Foods"}, names(byStatus))

	none, err := store.GetIPOsByStatus(ctx, "OPEN")
	require.NoError(t, err)
	assert.Empty(t, none)

	sme, err := store.SearchIPOs(ctx, "sme")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Acme Tech BSE SME", "Beta Foods"}, names(sme))

	byExchange, err := store.SearchIPOs(ctx, "mainBOARD")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Beta Foods", "Gamma Ltd"}, names(byExchange))
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := NewMemoryStoreWithClock(clock.Now)

	created, err := store.CreateIPO(ctx, sampleInput("Acme Ltd"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	premium := "42"
	status := models.StatusClosed
	updated, err := store.UpdateIPO(ctx, created.ID, models.IPOPatch{Premium: &premium, CurrentStatus: &status})
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, "42", *updated.Premium)
	assert.Equal(t, models.StatusClosed, updated.CurrentStatus)
	assert.Equal(t, "Acme Ltd", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	missing, err := store.UpdateIPO(ctx, 404, models.IPOPatch{Premium: &premium})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreUpsert(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := NewMemoryStoreWithClock(clock.Now)

	first, created, err := store.UpsertIPO(ctx, sampleInput("Acme Ltd"))
	require.NoError(t, err)
	assert.True(t, created)

	clock.Advance(time.Minute)
	again := sampleInput("  ACME LTD ")
	again.CurrentStatus = models.StatusClosed
	second, created, err := store.UpsertIPO(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, models.StatusClosed, second.CurrentStatus)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	other := sampleInput("Acme Ltd")
	other.Exchange = models.ExchangeNSESME
	_, created, err = store.UpsertIPO(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.IPOs)
	assert.Equal(t, "memory", counts.Backend)
}

func TestMemoryStoreUpsertFollowsRenamedRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.CreateIPO(ctx, sampleInput("Old Name"))
	require.NoError(t, err)

	name := "New Name"
	_, err = store.UpdateIPO(ctx, created.ID, models.IPOPatch{Name: &name})
	require.NoError(t, err)

	rec, inserted, err := store.UpsertIPO(ctx, sampleInput("New Name"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, created.ID, rec.ID)
}

func TestMemoryStoreContacts(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := NewMemoryStoreWithClock(clock.Now)

	first, err := store.CreateContact(ctx, models.ContactInput{Name: "A", Email: "a@example.com", Message: "hi"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := store.CreateContact(ctx, models.ContactInput{Name: "B", Email: "b@example.com", Message: "hello"})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	contacts, err := store.GetAllContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "B", contacts[0].Name)
	assert.Equal(t, "A", contacts[1].Name)
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	user, err := store.CreateUser(ctx, models.UserInput{Username: "admin", Password: "secret"})
	require.NoError(t, err)

	byID, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", byID.Username)

	byName, err := store.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = store.CreateUser(ctx, models.UserInput{Username: "admin", Password: "other"})
	require.Error(t, err)
	assert.True(t, shared.HasCategory(err, shared.ErrorCategoryValidation))

	missing, err := store.GetUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.CreateIPO(ctx, sampleInput(fmt.Sprintf("IPO %d", i)))
			_, _ = store.GetAllIPOs(ctx)
		}(i)
	}
	wg.Wait()

	all, err := store.GetAllIPOs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 50)

	seen := make(map[int64]bool)
	for _, r := range all {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
}

// TestMemoryStoreProperties checks id assignment and ordering for arbitrary inputs
func TestMemoryStoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Ids are unique and listing is newest first", prop.ForAll(
		func(names []string) bool {
			ctx := context.Background()
			clock := newManualClock()
			store := NewMemoryStoreWithClock(clock.Now)

			var lastID int64
			for i, name := range names {
				if i%3 == 0 {
					clock.Advance(time.Second)
				}
				rec, err := store.CreateIPO(ctx, sampleInput(name))
				if err != nil || rec.ID <= lastID {
					return false
				}
				lastID = rec.ID
			}

			all, _ := store.GetAllIPOs(ctx)
			if len(all) != len(names) {
				return false
			}
			for i := 1; i < len(all); i++ {
				prev, cur := all[i-1], all[i]
				if prev.CreatedAt.Before(cur.CreatedAt) {
					return false
				}
				if prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID > cur.ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func names(records []models.IPORecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}
