package database

import (
	"context"

	"github.com/fenilmodi00/nextipo-backend/models"
)

// Store is the persistence boundary for IPO records, contact messages and users.
// Lookups that miss return a nil record and a nil error.
type Store interface {
	CreateIPO(ctx context.Context, in models.IPOInput) (*models.IPORecord, error)
	GetAllIPOs(ctx context.Context) ([]models.IPORecord, error)
	GetIPOsByStatus(ctx context.Context, status string) ([]models.IPORecord, error)
	SearchIPOs(ctx context.Context, query string) ([]models.IPORecord, error)
	GetIPOByID(ctx context.Context, id int64) (*models.IPORecord, error)
	UpdateIPO(ctx context.Context, id int64, patch models.IPOPatch) (*models.IPORecord, error)
	UpsertIPO(ctx context.Context, in models.IPOInput) (*models.IPORecord, bool, error)

	CreateContact(ctx context.Context, in models.ContactInput) (*models.ContactMessage, error)
	GetAllContacts(ctx context.Context) ([]models.ContactMessage, error)

	CreateUser(ctx context.Context, in models.UserInput) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	Counts(ctx context.Context) (StoreCounts, error)
	Close() error
}

// StoreCounts is a cheap size snapshot used by the metrics endpoint
type StoreCounts struct {
	IPOs     int    `json:"ipos"`
	Contacts int    `json:"contacts"`
	Users    int    `json:"users"`
	Backend  string `json:"backend"`
}
