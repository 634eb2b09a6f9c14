package matching

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("doctor", "admin"))
	g.GET("/matching/optimal", h.FindOptimal)
	g.GET("/matching/validate", h.ValidateSelection)
}

// matchResponse mirrors the success/failure result shape the frontend
// branches on.
type matchResponse struct {
	Success bool   `json:"success"`
	Match   *Match `json:"match,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) FindOptimal(c echo.Context) error {
	department := c.QueryParam("department")
	if department == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "department is required")
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	match, err := h.svc.FindOptimalHospital(c.Request().Context(), userID, department)
	if err != nil {
		switch {
		case errors.Is(err, ErrHomeHospitalNotFound),
			errors.Is(err, ErrNoAvailableHospitals),
			errors.Is(err, ErrCapacityQuery):
			return c.JSON(http.StatusOK, matchResponse{Success: false, Reason: err.Error()})
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, matchResponse{Success: true, Match: match})
}

func (h *Handler) ValidateSelection(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.QueryParam("hospital_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
	}
	department := c.QueryParam("department")
	if department == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "department is required")
	}

	v, err := h.svc.ValidateSelection(c.Request().Context(), hospitalID, department)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}
