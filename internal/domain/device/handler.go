package device

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
	g := api.Group("/devices")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.PATCH("/:id/status", h.ChangeStatus)
	g.POST("/:id/assign", h.Assign)
	g.POST("/:id/unassign", h.Unassign)

	api.GET("/clients/:id/devices", h.ListForClient)
}

type createRequest struct {
	Serial            string  `json:"serial" validate:"notblank,max=64"`
	Model             string  `json:"model" validate:"notblank,max=200"`
	HardwareRevision  *string `json:"hardwareRevision" validate:"omitempty,max=64"`
	FirmwareVersion   *string `json:"firmwareVersion" validate:"omitempty,max=64"`
	Status            string  `json:"status" validate:"omitempty,devicestatus"`
	TelemetryEndpoint *string `json:"telemetryEndpoint" validate:"omitempty,url,max=500"`
	Notes             *string `json:"notes" validate:"omitempty,max=5000"`
}

func (r *createRequest) Validate() error {
	return validation.Struct(r)
}

func (r *createRequest) toDevice() *Device {
	return &Device{
		Serial:            r.Serial,
		Model:             r.Model,
		HardwareRevision:  r.HardwareRevision,
		FirmwareVersion:   r.FirmwareVersion,
		Status:            r.Status,
		TelemetryEndpoint: r.TelemetryEndpoint,
		Notes:             cleanText(r.Notes),
	}
}

type updateRequest struct {
	Serial            *string `json:"serial" validate:"omitempty,notblank,max=64"`
	Model             *string `json:"model" validate:"omitempty,notblank,max=200"`
	HardwareRevision  *string `json:"hardwareRevision" validate:"omitempty,max=64"`
	FirmwareVersion   *string `json:"firmwareVersion" validate:"omitempty,max=64"`
	TelemetryEndpoint *string `json:"telemetryEndpoint" validate:"omitempty,url,max=500"`
	Notes             *string `json:"notes" validate:"omitempty,max=5000"`
}

func (r *updateRequest) Validate() error {
	return validation.Struct(r)
}

func (r *updateRequest) changes() map[string]any {
	out := map[string]any{}
	if r.Serial != nil {
		out["serial"] = *r.Serial
	}
	if r.Model != nil {
		out["model"] = *r.Model
	}
	if r.HardwareRevision != nil {
		out["hardwareRevision"] = r.HardwareRevision
	}
	if r.FirmwareVersion != nil {
		out["firmwareVersion"] = r.FirmwareVersion
	}
	if r.TelemetryEndpoint != nil {
		out["telemetryEndpoint"] = r.TelemetryEndpoint
	}
	if r.Notes != nil {
		out["notes"] = cleanText(r.Notes)
	}
	return out
}

type statusRequest struct {
	Status string `json:"status" validate:"required,devicestatus"`
}

func (r *statusRequest) Validate() error {
	return validation.Struct(r)
}

type assignRequest struct {
	ClientID string `json:"clientId" validate:"required,uuid"`
}

func (r *assignRequest) Validate() error {
	return validation.Struct(r)
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
	d := req.toDevice()
	if err := h.svc.Create(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "id", "device")
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := filterFrom(c, pg)
	if err != nil {
		return err
	}
	if raw := c.QueryParam("clientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errs.NewBadRequestWithCode("INVALID_ID", "Invalid client id")
		}
		f.ClientID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForClient(c echo.Context) error {
	clientID, err := parseID(c, "id", "client")
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
		Model:  c.QueryParam("model"),
		Search: c.QueryParam("search"),
		Sort:   pg.Sort,
		Limit:  pg.Limit,
		Offset: pg.Offset(),
	}
	if f.Status != "" && !Statuses.Valid(f.Status) {
		return f, errs.NewBadRequestWithCode("INVALID_STATUS", "Unknown device status: "+f.Status)
	}
	return f, nil
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c, "id", "device")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := h.svc.Update(c.Request().Context(), id, req.changes())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c, "id", "device")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := parseID(c, "id", "device")
	if err != nil {
		return err
	}
	var req assignRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	clientID := uuid.MustParse(req.ClientID)
	c.Set(middleware.AuditClientKey, clientID.String())

	d, err := h.svc.Assign(c.Request().Context(), id, clientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Unassign(c echo.Context) error {
	id, err := parseID(c, "id", "device")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if cur, err := h.svc.Get(ctx, id); err == nil && cur.ClientID != nil {
		c.Set(middleware.AuditClientKey, cur.ClientID.String())
	}
	d, err := h.svc.Unassign(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c, "id", "device")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context, param, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, errs.NewBadRequestWithCode("INVALID_ID", "Invalid "+entity+" id")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return errs.NewNotFound("Device not found")
	case errors.Is(err, ErrClientNotFound):
		return errs.NewNotFound("Client not found")
	case errors.Is(err, ErrDuplicateSerial):
		return errs.NewConflict("DEVICE_ALREADY_EXISTS", "A device with this serial already exists")
	case errors.Is(err, ErrNotAssignable):
		return errs.NewConflict("DEVICE_NOT_ASSIGNABLE", err.Error())
	case errors.Is(err, ErrNotAssigned):
		return errs.NewConflict("DEVICE_NOT_ASSIGNED", "Device is not assigned to a client")
	case errors.Is(err, ErrStillAssigned):
		return errs.NewConflict("DEVICE_ASSIGNED", "Unassign the device before deleting it")
	case errors.Is(err, ErrAssignmentOnly):
		return errs.NewConflict("INVALID_STATUS_TRANSITION", "Use the assign and unassign endpoints to change assignment")
	case errors.Is(err, ErrClientDischarged):
		return errs.NewConflict("CLIENT_DISCHARGED", "Devices cannot be assigned to a discharged client")
	case errors.Is(err, ErrStatusChanged):
		return errs.NewConflict("STATUS_CHANGED", "Device status was changed by another request")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return errs.NewConflict("INVALID_STATUS_TRANSITION", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		return errs.NewBadRequestWithCode("INVALID_STATUS", err.Error())
	case errors.Is(err, query.ErrUnknownField):
		return errs.NewBadRequestWithCode("INVALID_SORT", err.Error())
	}
	return sqlerr.HandleError(err)
}
