package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/db/memory"
	"github.com/vivadrive/organization-api/internal/db/models"
	"github.com/vivadrive/organization-api/internal/db/repositories"
)

func TestEnsure_CreatesFixtures(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	fx, err := Ensure(ctx, store.Users(), store.Organizations())
	require.NoError(t, err)

	assert.Equal(t, AdminUsername, fx.Admin.Username)
	assert.True(t, fx.Admin.IsSuperuser)
	assert.True(t, fx.Admin.IsStaff)
	assert.True(t, auth.CheckPassword(fx.Admin.PasswordHash, AdminPassword))

	assert.Equal(t, COOUsername, fx.COO.Username)
	assert.Equal(t, "Dinesh Kumar", fx.COO.FullName())
	assert.True(t, fx.COO.IsStaff)
	assert.False(t, fx.COO.IsSuperuser)
	assert.True(t, auth.CheckPassword(fx.COO.PasswordHash, COOPassword))

	assert.Equal(t, OrganizationName, fx.Organization.Name)
	assert.Equal(t, OrganizationEstablishedOn, fx.Organization.EstablishedOn.String())
	assert.NotZero(t, fx.Organization.ID)
}

func TestEnsure_Idempotent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, err := Ensure(ctx, store.Users(), store.Organizations())
	require.NoError(t, err)
	second, err := Ensure(ctx, store.Users(), store.Organizations())
	require.NoError(t, err)

	assert.Equal(t, first.Admin.ID, second.Admin.ID)
	assert.Equal(t, first.COO.ID, second.COO.ID)
	assert.Equal(t, first.Organization.ID, second.Organization.ID)

	page, err := store.Organizations().List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestEnsureOrganization_FindsBeyondFirstPage(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	orgs := store.Organizations()

	for i := 0; i < scanPageSize+5; i++ {
		require.NoError(t, orgs.Create(ctx, &models.Organization{
			Name:             "filler",
			RegistrationCode: "F",
			EstablishedOn:    models.MustParseDate("2000-01-01"),
		}))
	}
	target := DemoOrganization()
	require.NoError(t, orgs.Create(ctx, target))

	found, err := EnsureOrganization(ctx, orgs, DemoOrganization())
	require.NoError(t, err)
	assert.Equal(t, target.ID, found.ID)
}

func TestCreateUser_Duplicate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := CreateUser(ctx, store.Users(), COOSpec())
	require.NoError(t, err)

	_, err = CreateUser(ctx, store.Users(), COOSpec())
	assert.True(t, errors.Is(err, repositories.ErrUsernameTaken), "err = %v", err)
}

func TestCreateUser_Validation(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := CreateUser(ctx, store.Users(), UserSpec{Password: "longenough"})
	assert.Error(t, err)

	_, err = CreateUser(ctx, store.Users(), UserSpec{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)
}
