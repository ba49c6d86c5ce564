// Package organization implements the /api/organization endpoints: create, list,
// read, full and partial update, and delete of organization records.
package organization

import (
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vivadrive/organization-api/internal/api/response"
	"github.com/vivadrive/organization-api/internal/config"
	"github.com/vivadrive/organization-api/internal/db/models"
	"github.com/vivadrive/organization-api/internal/db/repositories"
	"github.com/vivadrive/organization-api/internal/middleware"
	"github.com/vivadrive/organization-api/internal/telemetry"
)

const (
	msgCreated = "Organization Created!"
	msgUpdated = "Organization Updated!"
)

var errInvalidPage = &response.NotFoundError{Message: "Invalid page."}

// Handlers handles organization endpoints
type Handlers struct {
	store       repositories.OrganizationStore
	pageSize    int
	maxPageSize int
}

// NewHandlers creates the organization handlers backed by store.
func NewHandlers(cfg *config.APIConfig, store repositories.OrganizationStore) *Handlers {
	return &Handlers{
		store:       store,
		pageSize:    cfg.PageSize,
		maxPageSize: cfg.MaxPageSize,
	}
}

// OrganizationRequest is the body of POST and PUT. Every field except address is required.
type OrganizationRequest struct {
	Name             string `json:"name" binding:"required,max=255"`
	EstablishedOn    string `json:"established_on" binding:"required,datetime=2006-01-02"`
	RegistrationCode string `json:"registration_code" binding:"required,max=64"`
	Address          string `json:"address" binding:"max=255"`
}

// PatchOrganizationRequest is the body of PATCH. Absent fields are left unchanged.
type PatchOrganizationRequest struct {
	Name             *string `json:"name" binding:"omitnil,min=1,max=255"`
	EstablishedOn    *string `json:"established_on" binding:"omitnil,datetime=2006-01-02"`
	RegistrationCode *string `json:"registration_code" binding:"omitnil,min=1,max=64"`
	Address          *string `json:"address" binding:"omitnil,max=255"`
}

// ListResponse is a page of organizations. Next and Previous are absolute
// URLs, or null at either end.
type ListResponse struct {
	Count    int                    `json:"count"`
	Next     *string                `json:"next"`
	Previous *string                `json:"previous"`
	Results  []*models.Organization `json:"results"`
}

// @Summary      Create organization
// @Tags         Organization
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body      OrganizationRequest  true  "Organization"
// @Success      201   {object}  response.Envelope
// @Failure      400   {object}  response.ErrorBody
// @Failure      401   {object}  response.ErrorBody
// @Router       /api/organization/ [post]
// CreateHandler stores a new organization and echoes it back.
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, response.Bind(err))
			return
		}
		org, err := req.toModel()
		if err != nil {
			response.Fail(c, err)
			return
		}

		if err := h.store.Create(c.Request.Context(), org); err != nil {
			response.Fail(c, err)
			return
		}

		telemetry.OrganizationOperationsTotal.WithLabelValues("create").Inc()
		c.Set(middleware.CreatedIDKey, strconv.FormatInt(org.ID, 10))
		response.Success(c, http.StatusCreated, msgCreated, org)
	}
}

// @Summary      List organizations
// @Description  Page-number pagination ordered by id.
// @Tags         Organization
// @Security     Bearer
// @Produce      json
// @Param        page       query     int  false  "Page number (default 1)"
// @Param        page_size  query     int  false  "Items per page"
// @Success      200        {object}  ListResponse
// @Failure      401        {object}  response.ErrorBody
// @Failure      404        {object}  response.ErrorBody  "Invalid page."
// @Router       /api/organization/ [get]
// ListHandler returns one page of organizations.
// GET /api/organization/?page=2&page_size=20
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c.Query("page"))
		if !ok {
			response.Fail(c, errInvalidPage)
			return
		}
		size := h.parsePageSize(c.Query("page_size"))
		// The offset of such a page does not fit in an int.
		if page-1 > (math.MaxInt-size)/size {
			response.Fail(c, errInvalidPage)
			return
		}

		result, err := h.store.List(c.Request.Context(), (page-1)*size, size)
		if err != nil {
			response.Fail(c, err)
			return
		}
		// An empty first page is allowed; any other page must have rows.
		if page > 1 && len(result.Items) == 0 {
			response.Fail(c, errInvalidPage)
			return
		}

		resp := ListResponse{
			Count:   result.Total,
			Results: result.Items,
		}
		if resp.Results == nil {
			resp.Results = []*models.Organization{}
		}
		if page*size < result.Total {
			next := pageURL(c, page+1)
			resp.Next = &next
		}
		if page > 1 {
			prev := pageURL(c, page-1)
			resp.Previous = &prev
		}

		telemetry.OrganizationOperationsTotal.WithLabelValues("list").Inc()
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Get organization
// @Tags         Organization
// @Security     Bearer
// @Produce      json
// @Param        id   path      int  true  "Organization ID"
// @Success      200  {object}  models.Organization
// @Failure      401  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Router       /api/organization/{id} [get]
// GetHandler returns the bare record.
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			response.Fail(c, response.ErrNotFound)
			return
		}

		org, err := h.store.GetByID(c.Request.Context(), id)
		if err != nil {
			response.Fail(c, err)
			return
		}
		if org == nil {
			response.Fail(c, response.ErrNotFound)
			return
		}

		telemetry.OrganizationOperationsTotal.WithLabelValues("read").Inc()
		c.JSON(http.StatusOK, org)
	}
}

// @Summary      Replace organization
// @Tags         Organization
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path      int                  true  "Organization ID"
// @Param        body  body      OrganizationRequest  true  "Organization"
// @Success      200   {object}  response.Envelope
// @Failure      400   {object}  response.ErrorBody
// @Failure      401   {object}  response.ErrorBody
// @Failure      404   {object}  response.ErrorBody
// @Router       /api/organization/{id} [put]
// UpdateHandler replaces all mutable fields. An omitted address becomes empty.
func (h *Handlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			response.Fail(c, response.ErrNotFound)
			return
		}

		var req OrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, response.Bind(err))
			return
		}
		org, err := req.toModel()
		if err != nil {
			response.Fail(c, err)
			return
		}
		org.ID = id

		h.save(c, org)
	}
}

// @Summary      Update organization fields
// @Tags         Organization
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path      int                       true  "Organization ID"
// @Param        body  body      PatchOrganizationRequest  true  "Fields to change"
// @Success      200   {object}  response.Envelope
// @Failure      400   {object}  response.ErrorBody
// @Failure      401   {object}  response.ErrorBody
// @Failure      404   {object}  response.ErrorBody
// @Router       /api/organization/{id} [patch]
// PatchHandler changes only the supplied fields.
func (h *Handlers) PatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			response.Fail(c, response.ErrNotFound)
			return
		}

		var req PatchOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, response.Bind(err))
			return
		}

		org, err := h.store.GetByID(c.Request.Context(), id)
		if err != nil {
			response.Fail(c, err)
			return
		}
		if org == nil {
			response.Fail(c, response.ErrNotFound)
			return
		}
		if err := req.apply(org); err != nil {
			response.Fail(c, err)
			return
		}

		h.save(c, org)
	}
}

func (h *Handlers) save(c *gin.Context, org *models.Organization) {
	updated, err := h.store.Update(c.Request.Context(), org)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if updated == nil {
		response.Fail(c, response.ErrNotFound)
		return
	}

	telemetry.OrganizationOperationsTotal.WithLabelValues("update").Inc()
	response.Success(c, http.StatusOK, msgUpdated, updated)
}

// @Summary      Delete organization
// @Tags         Organization
// @Security     Bearer
// @Param        id   path  int  true  "Organization ID"
// @Success      204
// @Failure      401  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Router       /api/organization/{id} [delete]
// DeleteHandler removes the record and answers 204 with no body.
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			response.Fail(c, response.ErrNotFound)
			return
		}

		deleted, err := h.store.Delete(c.Request.Context(), id)
		if err != nil {
			response.Fail(c, err)
			return
		}
		if !deleted {
			response.Fail(c, response.ErrNotFound)
			return
		}

		telemetry.OrganizationOperationsTotal.WithLabelValues("delete").Inc()
		c.Status(http.StatusNoContent)
	}
}

func (r *OrganizationRequest) toModel() (*models.Organization, error) {
	established, err := parseEstablishedOn(r.EstablishedOn)
	if err != nil {
		return nil, err
	}
	return &models.Organization{
		Name:             r.Name,
		EstablishedOn:    established,
		RegistrationCode: r.RegistrationCode,
		Address:          r.Address,
	}, nil
}

func (r *PatchOrganizationRequest) apply(org *models.Organization) error {
	if r.EstablishedOn != nil {
		established, err := parseEstablishedOn(*r.EstablishedOn)
		if err != nil {
			return err
		}
		org.EstablishedOn = established
	}
	if r.Name != nil {
		org.Name = *r.Name
	}
	if r.RegistrationCode != nil {
		org.RegistrationCode = *r.RegistrationCode
	}
	if r.Address != nil {
		org.Address = *r.Address
	}
	return nil
}

// parseEstablishedOn catches calendar-invalid dates such as 2021-02-30 that
// pass the layout check.
func parseEstablishedOn(s string) (models.Date, error) {
	d, err := models.ParseDate(s)
	if err != nil || !d.IsValid() {
		return models.Date{}, &response.ValidationError{
			Message: "Invalid input.",
			Fields: map[string]string{
				"established_on": "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.",
			},
		}
	}
	return d, nil
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// parsePage accepts a missing page as 1 and rejects anything that is not a positive integer.
func parsePage(raw string) (int, bool) {
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// parsePageSize falls back to the default for bad input and caps at the maximum.
func (h *Handlers) parsePageSize(raw string) int {
	size, err := strconv.Atoi(raw)
	if err != nil || size < 1 {
		return h.pageSize
	}
	if size > h.maxPageSize {
		return h.maxPageSize
	}
	return size
}

// pageURL rebuilds the request URL with the page parameter replaced. Page 1
// drops the parameter.
func pageURL(c *gin.Context, page int) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	q := c.Request.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}
