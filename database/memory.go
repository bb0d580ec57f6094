package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
)

// MemoryStore keeps everything in process memory. All operations are atomic with
// respect to each other and values are copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	ipos     []models.IPORecord
	ipoIndex map[int64]int
	byKey    map[string]int64
	contacts []models.ContactMessage
	users    map[int64]models.User

	nextIPOID     int64
	nextContactID int64
	nextUserID    int64

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock lets tests pin timestamps
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		ipoIndex:      make(map[int64]int),
		byKey:         make(map[string]int64),
		users:         make(map[int64]models.User),
		nextIPOID:     1,
		nextContactID: 1,
		nextUserID:    1,
		now:           now,
	}
}

func (s *MemoryStore) CreateIPO(_ context.Context, in models.IPOInput) (*models.IPORecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.insertLocked(in)
	return &rec, nil
}

func (s *MemoryStore) insertLocked(in models.IPOInput) models.IPORecord {
	ts := s.now()
	rec := models.NewIPORecord(s.nextIPOID, in, ts, ts).Clone()
	s.nextIPOID++

	s.ipoIndex[rec.ID] = len(s.ipos)
	s.ipos = append(s.ipos, rec)
	if _, exists := s.byKey[in.NaturalKey()]; !exists {
		s.byKey[in.NaturalKey()] = rec.ID
	}
	return rec.Clone()
}

func (s *MemoryStore) GetAllIPOs(_ context.Context) ([]models.IPORecord, error) {
	return s.filter(func(models.IPORecord) bool { return true }), nil
}

func (s *MemoryStore) GetIPOsByStatus(_ context.Context, status string) ([]models.IPORecord, error) {
	return s.filter(func(r models.IPORecord) bool { return r.CurrentStatus == status }), nil
}

func (s *MemoryStore) SearchIPOs(_ context.Context, query string) ([]models.IPORecord, error) {
	q := strings.ToLower(query)
	return s.filter(func(r models.IPORecord) bool {
		return strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(strings.ToLower(r.ScriptCode), q) ||
			strings.Contains(strings.ToLower(r.Exchange), q)
	}), nil
}

// filter returns matching copies ordered newest first, ties kept in insertion order
func (s *MemoryStore) filter(match func(models.IPORecord) bool) []models.IPORecord {
	s.mu.RLock()
	out := make([]models.IPORecord, 0, len(s.ipos))
	for _, r := range s.ipos {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetIPOByID(_ context.Context, id int64) (*models.IPORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.ipoIndex[id]
	if !ok {
		return nil, nil
	}
	rec := s.ipos[idx].Clone()
	return &rec, nil
}

func (s *MemoryStore) UpdateIPO(_ context.Context, id int64, patch models.IPOPatch) (*models.IPORecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.ipoIndex[id]
	if !ok {
		return nil, nil
	}
	rec := s.ipos[idx]
	oldKey := models.NaturalKey(rec.ScriptCode, rec.Name, rec.Exchange)
	patch.Apply(&rec)
	rec.UpdatedAt = s.now()

	if newKey := models.NaturalKey(rec.ScriptCode, rec.Name, rec.Exchange); newKey != oldKey {
		if s.byKey[oldKey] == id {
			delete(s.byKey, oldKey)
		}
		if _, taken := s.byKey[newKey]; !taken {
			s.byKey[newKey] = id
		}
	}
	rec = rec.Clone()
	s.ipos[idx] = rec

	out := rec.Clone()
	return &out, nil
}

func (s *MemoryStore) UpsertIPO(_ context.Context, in models.IPOInput) (*models.IPORecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byKey[in.NaturalKey()]
	if !exists {
		rec := s.insertLocked(in)
		return &rec, true, nil
	}

	idx := s.ipoIndex[id]
	current := s.ipos[idx]
	rec := models.NewIPORecord(current.ID, in, current.CreatedAt, s.now()).Clone()
	s.ipos[idx] = rec

	out := rec.Clone()
	return &out, false, nil
}

func (s *MemoryStore) CreateContact(_ context.Context, in models.ContactInput) (*models.ContactMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.ContactMessage{
		ID:        s.nextContactID,
		Name:      in.Name,
		Email:     in.Email,
		Message:   in.Message,
		CreatedAt: s.now(),
	}
	s.nextContactID++
	s.contacts = append(s.contacts, msg)
	return &msg, nil
}

func (s *MemoryStore) GetAllContacts(_ context.Context) ([]models.ContactMessage, error) {
	s.mu.RLock()
	out := make([]models.ContactMessage, len(s.contacts))
	copy(out, s.contacts)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, in models.UserInput) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == in.Username {
			return nil, shared.NewServiceError(
				shared.ErrorCategoryValidation,
				"USERNAME_TAKEN",
				fmt.Sprintf("username %q already exists", in.Username),
				"MemoryStore",
				"CreateUser",
				false,
				nil,
			)
		}
	}

	user := models.User{ID: s.nextUserID, Username: in.Username, Password: in.Password}
	s.nextUserID++
	s.users[user.ID] = user
	return &user, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Counts(_ context.Context) (StoreCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreCounts{
		IPOs:     len(s.ipos),
		Contacts: len(s.contacts),
		Users:    len(s.users),
		Backend:  "memory",
	}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
