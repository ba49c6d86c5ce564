// Package repositories implements the data access layer (repository pattern) for the organization API.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly; all database access goes through the store interfaces below,
// which are satisfied by the PostgreSQL repositories in this package and by the in-memory store in package memory.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/vivadrive/organization-api/internal/db/models"
)

// ErrUsernameTaken is returned by UserStore.Create when the username already exists.
var ErrUsernameTaken = errors.New("username already exists")

// OrganizationStore owns the lifetime of organization records.
//
// Lookups return (nil, nil) when the record does not exist.
type OrganizationStore interface {
	// Create inserts org and sets its ID.
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id int64) (*models.Organization, error)
	// List returns up to limit records ordered by ID, skipping offset, with the total count.
	List(ctx context.Context, offset, limit int) (*models.OrganizationPage, error)
	// Update replaces every mutable field of the record with org.ID and returns
	// the stored record, or nil if there is no such record.
	Update(ctx context.Context, org *models.Organization) (*models.Organization, error)
	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)
	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
}

// UserStore owns the accounts that may obtain tokens.
type UserStore interface {
	// Create inserts user and sets its ID. Returns ErrUsernameTaken on conflict.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}
