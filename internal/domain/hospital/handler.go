package hospital

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
	readGroup := api.Group("", auth.RequireRole("doctor", "staff", "admin"))
	readGroup.GET("/hospitals", h.ListHospitals)
	readGroup.GET("/hospitals/:id", h.GetHospital)
	readGroup.GET("/hospitals/:id/departments", h.ListCapacities)
	readGroup.GET("/hospitals/:id/departments/:dept", h.GetCapacity)
	readGroup.GET("/departments", h.ListDepartments)

	writeGroup := api.Group("", auth.RequireRole("admin"))
	writeGroup.POST("/hospitals", h.CreateHospital)
	writeGroup.PUT("/hospitals/:id", h.UpdateHospital)
	writeGroup.DELETE("/hospitals/:id", h.DeleteHospital)
	writeGroup.POST("/hospitals/:id/departments", h.CreateCapacity)
	writeGroup.PUT("/hospitals/:id/departments/:dept", h.SetCapacity)
	writeGroup.DELETE("/hospitals/:id/departments/:dept", h.RemoveCapacity)
}

func (h *Handler) CreateHospital(c echo.Context) error {
	var hos Hospital
	if err := c.Bind(&hos); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateHospital(c.Request().Context(), &hos); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, hos)
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hos, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	return c.JSON(http.StatusOK, hos)
}

// ListHospitals accepts optional city and exclude filters. The referral
// destination picker passes exclude to hide the caller's own hospital.
func (h *Handler) ListHospitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		City:   c.QueryParam("city"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if raw := c.QueryParam("exclude"); raw != "" {
		exclude, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid exclude id")
		}
		f.Exclude = exclude
	}

	hospitals, total, err := h.svc.ListHospitals(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(hospitals, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var hos Hospital
	if err := c.Bind(&hos); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hos.ID = id
	if err := h.svc.UpdateHospital(c.Request().Context(), &hos); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, hos)
}

func (h *Handler) DeleteHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteHospital(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"departments": Departments})
}

func (h *Handler) ListCapacities(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caps, err := h.svc.ListCapacities(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if caps == nil {
		caps = []*Capacity{}
	}
	return c.JSON(http.StatusOK, caps)
}

func (h *Handler) GetCapacity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	capacity, err := h.svc.GetCapacity(c.Request().Context(), id, c.Param("dept"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "capacity not found")
	}
	return c.JSON(http.StatusOK, capacity)
}

type capacityBody struct {
	Department string  `json:"department"`
	Total      int     `json:"capacity_total"`
	Available  int     `json:"capacity_available"`
	HOD        *string `json:"hod"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email"`
}

// CreateCapacity adds a department to a hospital; the department comes from
// the body.
func (h *Handler) CreateCapacity(c echo.Context) error {
	return h.upsertCapacity(c, "")
}

// SetCapacity replaces the capacity row for the department in the path.
func (h *Handler) SetCapacity(c echo.Context) error {
	return h.upsertCapacity(c, c.Param("dept"))
}

func (h *Handler) upsertCapacity(c echo.Context, department string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body capacityBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if department == "" {
		department = body.Department
	}

	capacity := &Capacity{
		HospitalID: id,
		Department: department,
		Total:      body.Total,
		Available:  body.Available,
		HOD:        body.HOD,
		Phone:      body.Phone,
		Email:      body.Email,
	}
	if err := h.svc.SetCapacity(c.Request().Context(), capacity); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, capacity)
}

func (h *Handler) RemoveCapacity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.RemoveCapacity(c.Request().Context(), id, c.Param("dept")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
