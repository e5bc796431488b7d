package attendance

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	mgr      *Manager
	validate *validator.Validate
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr, validate: newValidator()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleManager, auth.RoleReceptionist))
	read.GET("/branches/:id/schedule", h.GetBranchSchedule)
	read.GET("/schedules", h.ListSchedules)
	read.GET("/doctors/:id/schedule-entries", h.ListDoctorEntries)
	read.GET("/schedule-entries/:id", h.GetEntry)

	write := api.Group("", auth.RequireRole(auth.RoleManager))
	write.POST("/schedules/:id/entries", h.AddEntry)
	write.PATCH("/schedule-entries/:id", h.UpdateEntry)
	write.DELETE("/schedule-entries/:id", h.DeleteEntry)
}

// GetBranchSchedule returns the branch's roster, creating an empty one on
// first access.
func (h *Handler) GetBranchSchedule(c echo.Context) error {
	branchID, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	view, err := h.mgr.GetScheduleView(ctx, branchID, auth.Actor(ctx))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListSchedules(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.mgr.ListSchedules(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListDoctorEntries(c echo.Context) error {
	doctorID, err := pathID(c)
	if err != nil {
		return err
	}
	entries, err := h.mgr.ListDoctorEntries(c.Request().Context(), doctorID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": entries})
}

func (h *Handler) GetEntry(c echo.Context) error {
	entryID, err := pathID(c)
	if err != nil {
		return err
	}
	view, err := h.mgr.GetEntry(c.Request().Context(), entryID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) AddEntry(c echo.Context) error {
	scheduleID, err := pathID(c)
	if err != nil {
		return err
	}
	var req createEntryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in, err := req.toNewEntry(h.validate)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := c.Request().Context()
	id, err := h.mgr.AddEntry(ctx, scheduleID, in, auth.Actor(ctx))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id.String()})
}

func (h *Handler) UpdateEntry(c echo.Context) error {
	entryID, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateEntryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patch, err := req.toPatch(h.validate)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := c.Request().Context()
	updated, err := h.mgr.UpdateEntry(ctx, entryID, patch, auth.Actor(ctx))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteEntry(c echo.Context) error {
	entryID, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.mgr.DeleteEntry(ctx, entryID, auth.Actor(ctx)); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type conflictBody struct {
	EntryID    uuid.UUID `json:"entry_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	BranchID   uuid.UUID `json:"branch_id"`
	BranchName string    `json:"branch_name"`
	Weekday    Weekday   `json:"weekday"`
	Start      TimeOfDay `json:"start"`
	End        TimeOfDay `json:"end"`
}

// toHTTPError maps manager errors onto status codes. Storage and other
// unexpected failures surface as a generic 500 with the cause kept internal.
func toHTTPError(err error) error {
	var (
		validationErr *ValidationError
		conflictErr   *ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &conflictErr):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message": conflictErr.Error(),
			"conflict": conflictBody{
				EntryID:    conflictErr.EntryID,
				DoctorID:   conflictErr.DoctorID,
				DoctorName: conflictErr.DoctorName,
				BranchID:   conflictErr.BranchID,
				BranchName: conflictErr.BranchName,
				Weekday:    conflictErr.Interval.Weekday,
				Start:      conflictErr.Interval.Start,
				End:        conflictErr.Interval.End,
			},
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "doctor roster is busy, retry shortly").SetInternal(err)
	case errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
