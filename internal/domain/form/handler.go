package form

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rehab/clinic/internal/platform/errs"
	"github.com/rehab/clinic/internal/platform/lifecycle"
	"github.com/rehab/clinic/internal/platform/query"
	"github.com/rehab/clinic/internal/platform/sqlerr"
	"github.com/rehab/clinic/internal/platform/validation"
	"github.com/rehab/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/forms")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/catalog", h.Catalog)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id/status", h.ChangeStatus)
	g.DELETE("/:id", h.Delete)
}

type createRequest struct {
	Title       string  `json:"title" validate:"notblank,max=300"`
	Type        string  `json:"type" validate:"required,formtype"`
	Status      string  `json:"status" validate:"omitempty,formstatus"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Schema      Schema  `json:"schema"`
}

func (r *createRequest) Validate() error {
	return validation.Struct(r)
}

type updateRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=300"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Schema      *Schema `json:"schema"`
}

func (r *updateRequest) Validate() error {
	return validation.Struct(r)
}

func (r *updateRequest) changes() map[string]any {
	out := map[string]any{}
	if r.Title != nil {
		out["title"] = *r.Title
	}
	if r.Description != nil {
		out["description"] = r.Description
	}
	if r.Schema != nil {
		out["schema"] = *r.Schema
	}
	return out
}

type statusRequest struct {
	Status string `json:"status" validate:"required,formstatus"`
}

func (r *statusRequest) Validate() error {
	return validation.Struct(r)
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	f := &Form{
		Title:       req.Title,
		Type:        req.Type,
		Status:      req.Status,
		Description: req.Description,
		Schema:      req.Schema,
	}
	if err := h.svc.Create(c.Request().Context(), f); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Type:   c.QueryParam("type"),
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
		Sort:   pg.Sort,
		Limit:  pg.Limit,
		Offset: pg.Offset(),
	}
	if f.Status != "" && !Statuses.Valid(f.Status) {
		return errs.NewBadRequestWithCode("INVALID_STATUS", "Unknown form status: "+f.Status)
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// Catalog returns the built-in templates that `seed templates` installs.
func (h *Handler) Catalog(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"data": Catalog()})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	f, err := h.svc.Update(c.Request().Context(), id, req.changes())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	f, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errs.NewBadRequestWithCode("INVALID_ID", "Invalid form id")
	}
	return id, nil
}

func httpError(err error) error {
	var ce validation.CustomValidationErrors
	switch {
	case errors.As(err, &ce):
		return validation.ToHTTPError(err)
	case errors.Is(err, ErrNotFound):
		return errs.NewNotFound("Form not found")
	case errors.Is(err, ErrReadOnly):
		return errs.NewConflict("FORM_ARCHIVED", "Archived forms cannot be changed")
	case errors.Is(err, ErrConcurrentUpdate):
		return errs.NewConflict("FORM_MODIFIED", "Form was modified by another request")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return errs.NewConflict("INVALID_STATUS_TRANSITION", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		return errs.NewBadRequestWithCode("INVALID_STATUS", err.Error())
	case errors.Is(err, query.ErrUnknownField):
		return errs.NewBadRequestWithCode("INVALID_SORT", err.Error())
	}
	return sqlerr.HandleError(err)
}
