package client

import (
	"errors"
	"net/http"
	"time"

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
	g := api.Group("/clients")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id/status", h.ChangeStatus)
	g.DELETE("/:id", h.Delete)
}

type createRequest struct {
	FirstName  string    `json:"firstName" validate:"notblank,max=100"`
	LastName   string    `json:"lastName" validate:"notblank,max=100"`
	MiddleName *string   `json:"middleName" validate:"omitempty,max=100"`
	BirthDate  string    `json:"birthDate" validate:"omitempty,date"`
	Gender     *string   `json:"gender" validate:"omitempty,gender"`
	Contacts   *Contacts `json:"contacts"`
	Diagnosis  *string   `json:"diagnosis" validate:"omitempty,max=2000"`
	Notes      *string   `json:"notes" validate:"omitempty,max=5000"`
	Status     string    `json:"status" validate:"omitempty,clientstatus"`
	ClinicID   *string   `json:"clinicId" validate:"omitempty,max=64"`
}

func (r *createRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	return checkBirthDate(r.BirthDate)
}

func (r *createRequest) toClient() *Client {
	c := &Client{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		MiddleName: r.MiddleName,
		Gender:     r.Gender,
		Contacts:   r.Contacts,
		Diagnosis:  cleanText(r.Diagnosis),
		Notes:      cleanText(r.Notes),
		Status:     r.Status,
		ClinicID:   r.ClinicID,
	}
	if r.BirthDate != "" {
		d, _ := ParseDate(r.BirthDate)
		c.BirthDate = &d
	}
	return c
}

// updateRequest is a partial update: absent fields are left alone.
type updateRequest struct {
	FirstName  *string   `json:"firstName" validate:"omitempty,notblank,max=100"`
	LastName   *string   `json:"lastName" validate:"omitempty,notblank,max=100"`
	MiddleName *string   `json:"middleName" validate:"omitempty,max=100"`
	BirthDate  *string   `json:"birthDate" validate:"omitempty,date"`
	Gender     *string   `json:"gender" validate:"omitempty,gender"`
	Contacts   *Contacts `json:"contacts"`
	Diagnosis  *string   `json:"diagnosis" validate:"omitempty,max=2000"`
	Notes      *string   `json:"notes" validate:"omitempty,max=5000"`
	ClinicID   *string   `json:"clinicId" validate:"omitempty,max=64"`
}

func (r *updateRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.BirthDate != nil {
		return checkBirthDate(*r.BirthDate)
	}
	return nil
}

func (r *updateRequest) changes() map[string]any {
	out := map[string]any{}
	if r.FirstName != nil {
		out["firstName"] = *r.FirstName
	}
	if r.LastName != nil {
		out["lastName"] = *r.LastName
	}
	if r.MiddleName != nil {
		out["middleName"] = r.MiddleName
	}
	if r.BirthDate != nil {
		d, _ := ParseDate(*r.BirthDate)
		out["birthDate"] = &d
	}
	if r.Gender != nil {
		out["gender"] = r.Gender
	}
	if r.Contacts != nil {
		out["contacts"] = r.Contacts
	}
	if r.Diagnosis != nil {
		out["diagnosis"] = cleanText(r.Diagnosis)
	}
	if r.Notes != nil {
		out["notes"] = cleanText(r.Notes)
	}
	if r.ClinicID != nil {
		out["clinicId"] = r.ClinicID
	}
	return out
}

type statusRequest struct {
	Status string `json:"status" validate:"required,clientstatus"`
}

func (r *statusRequest) Validate() error {
	return validation.Struct(r)
}

func checkBirthDate(s string) error {
	if s == "" {
		return nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil
	}
	if d.After(time.Now()) {
		return validation.CustomValidationErrors{{Field: "birthDate", Message: "must not be in the future"}}
	}
	return nil
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
	cl := req.toClient()
	if err := h.svc.Create(c.Request().Context(), cl); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Status:   c.QueryParam("status"),
		ClinicID: c.QueryParam("clinicId"),
		Search:   c.QueryParam("search"),
		Sort:     pg.Sort,
		Limit:    pg.Limit,
		Offset:   pg.Offset(),
	}
	if f.Status != "" && !Statuses.Valid(f.Status) {
		return errs.NewBadRequestWithCode("INVALID_STATUS", "Unknown client status: "+f.Status)
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
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
	cl, err := h.svc.Update(c.Request().Context(), id, req.changes())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
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
	cl, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
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
		return uuid.Nil, errs.NewBadRequestWithCode("INVALID_ID", "Invalid client id")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return errs.NewNotFound("Client not found")
	case errors.Is(err, ErrStatusChanged):
		return errs.NewConflict("STATUS_CHANGED", "Client status was changed by another request")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return errs.NewConflict("INVALID_STATUS_TRANSITION", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		return errs.NewBadRequestWithCode("INVALID_STATUS", err.Error())
	case errors.Is(err, query.ErrUnknownField):
		return errs.NewBadRequestWithCode("INVALID_SORT", err.Error())
	}
	return sqlerr.HandleError(err)
}
