package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivadrive/organization-api/internal/api/apitest"
	"github.com/vivadrive/organization-api/internal/middleware"
	"github.com/vivadrive/organization-api/internal/seed"
	"github.com/vivadrive/organization-api/internal/telemetry"
)

// These scenarios walk the service the way a client does: log in with a
// seeded account, then work with organizations using the issued token.

func TestScenario_AdminSeesSeededOrganization(t *testing.T) {
	h := apitest.New(t)
	fx := h.Fixtures(t)

	pair := h.Login(t, seed.AdminUsername, seed.AdminPassword)

	w := h.Do(t, http.MethodGet, "/api/organization/", nil, pair.Access)
	require.Equal(t, http.StatusOK, w.Code)

	body := apitest.Decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	first := body["results"].([]any)[0].(map[string]any)
	assert.Equal(t, seed.OrganizationName, first["name"])
	assert.Equal(t, seed.OrganizationRegistrationCode, first["registration_code"])
	assert.Equal(t, seed.OrganizationEstablishedOn, first["established_on"])
	assert.Equal(t, seed.OrganizationAddress, first["address"])
	assert.Equal(t, float64(fx.Organization.ID), first["id"])
}

func TestScenario_StaffManagesOrganizationLifecycle(t *testing.T) {
	h := apitest.New(t)
	h.Fixtures(t)
	token := h.Login(t, seed.COOUsername, seed.COOPassword).Access

	created := h.Do(t, http.MethodPost, "/api/organization/", map[string]string{
		"name":              "Ogul Tutuncu",
		"established_on":    "1998-08-03",
		"registration_code": "123456",
		"address":           "Warsaw,Poland",
	}, token)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	id := int64(apitest.Decode(t, created)["data"].(map[string]any)["id"].(float64))
	path := fmt.Sprintf("/api/organization/%d", id)

	list := apitest.Decode(t, h.Do(t, http.MethodGet, "/api/organization/", nil, token))
	assert.Equal(t, float64(2), list["count"])

	updated := h.Do(t, http.MethodPut, path, map[string]string{
		"name":              `Dinesh "the COO" Kumar`,
		"established_on":    "1998-10-21",
		"registration_code": "475321",
	}, token)
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())

	read := apitest.Decode(t, h.Do(t, http.MethodGet, path, nil, token))
	assert.Equal(t, `Dinesh "the COO" Kumar`, read["name"])
	assert.Equal(t, "475321", read["registration_code"])
	assert.Equal(t, "1998-10-21", read["established_on"])
	assert.Equal(t, "", read["address"], "old address must not survive a full replace")

	deleted := h.Do(t, http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusNoContent, deleted.Code)
	assert.Equal(t, http.StatusNotFound, h.Do(t, http.MethodGet, path, nil, token).Code)
}

func TestScenario_TokenRoundTrip(t *testing.T) {
	h := apitest.New(t)
	h.Fixtures(t)

	pair := h.Login(t, seed.AdminUsername, seed.AdminPassword)

	w := h.Do(t, http.MethodPost, "/api/user/verify-token/", map[string]string{"token": pair.Access}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.Do(t, http.MethodPost, "/api/user/refresh-token/", map[string]string{"refresh": pair.Refresh}, "")
	require.Equal(t, http.StatusOK, w.Code)
	access := apitest.Decode(t, w)["access"].(string)

	w = h.Do(t, http.MethodGet, "/api/organization/", nil, access)
	assert.Equal(t, http.StatusOK, w.Code, "a refreshed access token must authorize requests")
}

func TestScenario_AnonymousClientIsRejected(t *testing.T) {
	h := apitest.New(t)
	h.Fixtures(t)

	w := h.Do(t, http.MethodGet, "/api/organization/", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, apitest.Decode(t, w)["status"])

	w = h.Do(t, http.MethodGet, "/api/organization/", nil, "definitely-not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_not_valid", apitest.Decode(t, w)["code"])
}

func TestRouter_ProbesAndHeaders(t *testing.T) {
	h := apitest.New(t)

	for _, path := range []string{"/health", "/ready", "/version"} {
		w := h.Do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader), path)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"), path)
	}

	w := h.Do(t, http.MethodGet, "/api/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", apitest.Decode(t, w)["message"])
}

func TestRouter_PreflightAnswersWithoutAuth(t *testing.T) {
	h := apitest.New(t)

	w := h.Do(t, http.MethodOptions, "/api/organization/", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_CountsOrganizationOperations(t *testing.T) {
	h := apitest.New(t)
	h.Fixtures(t)
	token := h.Login(t, seed.AdminUsername, seed.AdminPassword).Access

	counter := telemetry.OrganizationOperationsTotal.WithLabelValues("list")
	before := testutil.ToFloat64(counter)

	w := h.Do(t, http.MethodGet, "/api/organization/", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
