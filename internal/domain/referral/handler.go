package referral

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/platform/auth"
	"github.com/refermed/refermed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("doctor", "admin"))
	g.POST("/referrals", h.CreateReferral)
	g.GET("/referrals/incoming", h.ListIncoming)
	g.GET("/referrals/outgoing", h.ListOutgoing)
	g.GET("/referrals/:id", h.GetReferral)
	g.POST("/referrals/:id/approve", h.Approve)
	g.POST("/referrals/:id/reject", h.Reject)
	g.POST("/referrals/:id/complete", h.Complete)
	g.POST("/referrals/:id/cancel", h.Cancel)
	g.POST("/referrals/:id/summarise", h.Summarise)
	g.PUT("/referrals/draft", h.SaveDraft)
	g.GET("/referrals/draft", h.GetDraft)
	g.DELETE("/referrals/draft", h.DeleteDraft)
}

func (h *Handler) CreateReferral(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref, err := h.svc.CreateReferral(c.Request().Context(), currentUserID(c), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) GetReferral(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ref, err := h.svc.GetReferral(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "referral not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) ListIncoming(c echo.Context) error {
	refs, total, err := h.svc.IncomingReferrals(c.Request().Context(), currentUserID(c), filterFromContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, listResponse(refs, total))
}

func (h *Handler) ListOutgoing(c echo.Context) error {
	refs, total, err := h.svc.OutgoingReferrals(c.Request().Context(), currentUserID(c), filterFromContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, listResponse(refs, total))
}

func (h *Handler) Approve(c echo.Context) error {
	return h.transition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Approve(ctx.Request().Context(), id, currentUserID(ctx))
	})
}

func (h *Handler) Reject(c echo.Context) error {
	return h.transition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Reject(ctx.Request().Context(), id)
	})
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Complete(ctx.Request().Context(), id, currentUserID(ctx))
	})
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Cancel(ctx.Request().Context(), id, currentUserID(ctx))
	})
}

func (h *Handler) transition(c echo.Context, fn func(echo.Context, uuid.UUID) (*Referral, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ref, err := fn(c, id)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return echo.NewHTTPError(http.StatusConflict, "referral is not in a state that allows this action")
		}
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "referral not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) Summarise(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	text, err := h.svc.Summarize(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "referral not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": text})
}

func (h *Handler) SaveDraft(c echo.Context) error {
	var payload json.RawMessage
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.SaveDraft(c.Request().Context(), currentUserID(c), payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDraft(c echo.Context) error {
	d, err := h.svc.GetDraft(c.Request().Context(), currentUserID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no draft saved")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	if err := h.svc.DeleteDraft(c.Request().Context(), currentUserID(c)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func filterFromContext(c echo.Context) ListFilter {
	pg := pagination.FromContext(c)
	return ListFilter{
		Status:       c.QueryParam("status"),
		ReferralType: c.QueryParam("referral_type"),
		Limit:        pg.Limit,
		Offset:       pg.Offset,
	}
}

func listResponse(refs []*Referral, total int) map[string]interface{} {
	if refs == nil {
		refs = []*Referral{}
	}
	return map[string]interface{}{"data": refs, "total": total}
}

func currentUserID(c echo.Context) string {
	if v, ok := c.Get("auth_user_id").(string); ok {
		return v
	}
	return ""
}
