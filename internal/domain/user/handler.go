package user

import (
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
	api.POST("/users/ensure", h.EnsureUser)
	api.GET("/users/me", h.GetMe)
	api.POST("/users/me/onboard", h.CompleteOnboarding)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.GET("/users", h.ListUsers)
}

// EnsureUser registers the authenticated user on first contact. The frontend
// calls it after every sign-in.
func (h *Handler) EnsureUser(c echo.Context) error {
	externalID := auth.UserIDFromContext(c.Request().Context())
	if externalID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}

	var body struct {
		Email    *string `json:"email"`
		FullName *string `json:"full_name"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u, err := h.svc.EnsureUser(c.Request().Context(), externalID, body.Email, body.FullName)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetMe(c echo.Context) error {
	externalID := auth.UserIDFromContext(c.Request().Context())
	u, err := h.svc.GetUser(c.Request().Context(), externalID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CompleteOnboarding(c echo.Context) error {
	externalID := auth.UserIDFromContext(c.Request().Context())

	var body struct {
		HospitalID string `json:"hospital_id"`
		Role       string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hospitalID, err := uuid.Parse(body.HospitalID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
	}

	u, err := h.svc.CompleteOnboarding(c.Request().Context(), externalID, hospitalID, body.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg.Limit, pg.Offset))
}
