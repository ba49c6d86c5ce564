// Package seed creates accounts and the demo organization used by local
// environments and by the acceptance suite.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/db/models"
	"github.com/vivadrive/organization-api/internal/db/repositories"
)

const (
	AdminUsername = "admin"
	AdminPassword = "admin123456"
	AdminEmail    = "ogul@vivadrive.io"

	COOUsername = "theCOO"
	COOPassword = "dinesh123456"
	COOEmail    = "dinesh@vivadrive.io"

	OrganizationName             = "VivaDrive"
	OrganizationRegistrationCode = "V1v4Dr1v3"
	OrganizationEstablishedOn    = "2004-04-04"
	OrganizationAddress          = "Warsaw, Poland"
)

// scanPageSize is the page size used when looking for an existing fixture organization.
const scanPageSize = 100

// UserSpec describes an account to create.
type UserSpec struct {
	Username    string
	Password    string
	Email       string
	FirstName   string
	LastName    string
	IsStaff     bool
	IsSuperuser bool
}

// Fixtures are the records ensured by Ensure.
type Fixtures struct {
	Admin        *models.User
	COO          *models.User
	Organization *models.Organization
}

// CreateUser hashes the password and stores a new active account. It returns
// repositories.ErrUsernameTaken when the username exists.
func CreateUser(ctx context.Context, users repositories.UserStore, spec UserSpec) (*models.User, error) {
	if spec.Username == "" {
		return nil, errors.New("username is required")
	}
	hash, err := auth.HashPassword(spec.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     spec.Username,
		Email:        spec.Email,
		PasswordHash: hash,
		FirstName:    spec.FirstName,
		LastName:     spec.LastName,
		IsActive:     true,
		IsStaff:      spec.IsStaff || spec.IsSuperuser,
		IsSuperuser:  spec.IsSuperuser,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureUser returns the account named spec.Username, creating it when absent.
// An existing account is returned unchanged.
func EnsureUser(ctx context.Context, users repositories.UserStore, spec UserSpec) (*models.User, error) {
	existing, err := users.GetByUsername(ctx, spec.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", spec.Username, err)
	}
	if existing != nil {
		return existing, nil
	}

	user, err := CreateUser(ctx, users, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", spec.Username, err)
	}
	slog.Info("seeded user", "username", user.Username, "id", user.ID)
	return user, nil
}

// EnsureOrganization returns the organization with org's registration code,
// creating org when none exists.
func EnsureOrganization(ctx context.Context, orgs repositories.OrganizationStore, org *models.Organization) (*models.Organization, error) {
	for offset := 0; ; offset += scanPageSize {
		page, err := orgs.List(ctx, offset, scanPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list organizations: %w", err)
		}
		for _, existing := range page.Items {
			if existing.RegistrationCode == org.RegistrationCode {
				return existing, nil
			}
		}
		if offset+scanPageSize >= page.Total {
			break
		}
	}

	created := *org
	if err := orgs.Create(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to create organization %q: %w", org.Name, err)
	}
	slog.Info("seeded organization", "name", created.Name, "id", created.ID)
	return &created, nil
}

// AdminSpec is the superuser account.
func AdminSpec() UserSpec {
	return UserSpec{
		Username:    AdminUsername,
		Password:    AdminPassword,
		Email:       AdminEmail,
		IsSuperuser: true,
	}
}

// COOSpec is the staff account.
func COOSpec() UserSpec {
	return UserSpec{
		Username:  COOUsername,
		Password:  COOPassword,
		Email:     COOEmail,
		FirstName: "Dinesh",
		LastName:  "Kumar",
		IsStaff:   true,
	}
}

// DemoOrganization is the VivaDrive record.
func DemoOrganization() *models.Organization {
	return &models.Organization{
		Name:             OrganizationName,
		RegistrationCode: OrganizationRegistrationCode,
		EstablishedOn:    models.MustParseDate(OrganizationEstablishedOn),
		Address:          OrganizationAddress,
	}
}

// Ensure creates the admin and COO accounts and the VivaDrive organization
// unless they already exist. Running it twice changes nothing.
func Ensure(ctx context.Context, users repositories.UserStore, orgs repositories.OrganizationStore) (*Fixtures, error) {
	admin, err := EnsureUser(ctx, users, AdminSpec())
	if err != nil {
		return nil, err
	}
	coo, err := EnsureUser(ctx, users, COOSpec())
	if err != nil {
		return nil, err
	}
	org, err := EnsureOrganization(ctx, orgs, DemoOrganization())
	if err != nil {
		return nil, err
	}
	return &Fixtures{Admin: admin, COO: coo, Organization: org}, nil
}
