package formentry

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rehab/clinic/internal/platform/errs"
	"github.com/rehab/clinic/internal/platform/lifecycle"
	"github.com/rehab/clinic/internal/platform/middleware"
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
	g := api.Group("/form-entries")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/cancel", h.Cancel)
	g.GET("/:id/archive", h.Archive)

	api.GET("/clients/:id/form-entries", h.ListForClient)
}

type createRequest struct {
	FormID   string         `json:"formId" validate:"required,uuid"`
	ClientID string         `json:"clientId" validate:"required,uuid"`
	Data     map[string]any `json:"data"`
	Notes    *string        `json:"notes" validate:"omitempty,max=5000"`
}

func (r *createRequest) Validate() error {
	return validation.Struct(r)
}

// patchRequest is the body of PUT /:id and POST /:id/complete.
type patchRequest struct {
	Data  map[string]any `json:"data"`
	Notes *string        `json:"notes" validate:"omitempty,max=5000"`
}

func (r *patchRequest) Validate() error {
	return validation.Struct(r)
}

func (r *patchRequest) patch() Patch {
	return Patch{Data: r.Data, Notes: cleanText(r.Notes)}
}

func cleanText(s *string) *string {
	if s == nil {
		return nil
	}
	v := middleware.SanitizeString(*s)
	return &v
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	e := &Entry{
		FormID:   uuid.MustParse(req.FormID),
		ClientID: uuid.MustParse(req.ClientID),
		Data:     req.Data,
		Notes:    cleanText(req.Notes),
	}
	c.Set(middleware.AuditClientKey, e.ClientID.String())

	if err := h.svc.Create(c.Request().Context(), e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "form entry")
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := filterFrom(c, pg)
	if err != nil {
		return err
	}
	for param, dst := range map[string]**uuid.UUID{"formId": &f.FormID, "clientId": &f.ClientID} {
		raw := c.QueryParam(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return errs.NewBadRequestWithCode("INVALID_ID", "Invalid "+param)
		}
		*dst = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForClient(c echo.Context) error {
	clientID, err := parseID(c, "client")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f, err := filterFrom(c, pg)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListForClient(c.Request().Context(), clientID, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func filterFrom(c echo.Context, pg pagination.Params) (Filter, error) {
	f := Filter{
		Status: c.QueryParam("status"),
		Sort:   pg.Sort,
		Limit:  pg.Limit,
		Offset: pg.Offset(),
	}
	if f.Status != "" && !Statuses.Valid(f.Status) {
		return f, errs.NewBadRequestWithCode("INVALID_STATUS", "Unknown form entry status: "+f.Status)
	}
	return f, nil
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c, "form entry")
	if err != nil {
		return err
	}
	var req patchRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.Update(c.Request().Context(), id, req.patch())
	if err != nil {
		return httpError(err)
	}
	c.Set(middleware.AuditClientKey, e.ClientID.String())
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c, "form entry")
	if err != nil {
		return err
	}
	var req patchRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.Complete(c.Request().Context(), id, req.patch())
	if err != nil {
		return httpError(err)
	}
	c.Set(middleware.AuditClientKey, e.ClientID.String())
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c, "form entry")
	if err != nil {
		return err
	}
	e, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	c.Set(middleware.AuditClientKey, e.ClientID.String())
	return c.JSON(http.StatusOK, e)
}

// Archive serves the immutable snapshot written on completion.
func (h *Handler) Archive(c echo.Context) error {
	id, err := parseID(c, "form entry")
	if err != nil {
		return err
	}
	data, meta, err := h.svc.Archived(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("ETag", `"`+meta.Hash+`"`)
	return c.Blob(http.StatusOK, meta.ContentType, data)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c, "form entry")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if cur, err := h.svc.Get(ctx, id); err == nil {
		c.Set(middleware.AuditClientKey, cur.ClientID.String())
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errs.NewBadRequestWithCode("INVALID_ID", "Invalid "+entity+" id")
	}
	return id, nil
}

func httpError(err error) error {
	var ce validation.CustomValidationErrors
	switch {
	case errors.As(err, &ce):
		return validation.ToHTTPError(err)
	case errors.Is(err, ErrNotFound):
		return errs.NewNotFound("Form entry not found")
	case errors.Is(err, ErrFormNotFound):
		return errs.NewNotFound("Form not found")
	case errors.Is(err, ErrClientNotFound):
		return errs.NewNotFound("Client not found")
	case errors.Is(err, ErrNotArchived):
		return errs.NewNotFound("Form entry has no archived snapshot")
	case errors.Is(err, ErrFormNotActive):
		return errs.NewConflict("FORM_NOT_ACTIVE", "Entries can only be started on active forms")
	case errors.Is(err, ErrClientDischarged):
		return errs.NewConflict("CLIENT_DISCHARGED", "Forms cannot be started for a discharged client")
	case errors.Is(err, ErrNotInProgress):
		return errs.NewConflict("ENTRY_NOT_IN_PROGRESS", "Only in-progress entries can be changed")
	case errors.Is(err, ErrCompleted):
		return errs.NewConflict("ENTRY_COMPLETED", "Completed entries are clinical records and cannot be deleted")
	case errors.Is(err, ErrStatusChanged):
		return errs.NewConflict("STATUS_CHANGED", "Form entry was changed by another request")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return errs.NewConflict("INVALID_STATUS_TRANSITION", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		return errs.NewBadRequestWithCode("INVALID_STATUS", err.Error())
	case errors.Is(err, query.ErrUnknownField):
		return errs.NewBadRequestWithCode("INVALID_SORT", err.Error())
	}
	return sqlerr.HandleError(err)
}
