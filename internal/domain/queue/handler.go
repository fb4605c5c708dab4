package queue

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/queue/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/queue", h.GetQueue)
	api.GET("/queue/display", h.DisplayQueue)
	api.GET("/queue/status", h.QueueStatus)
	api.POST("/queue/serve", h.ServeNext)
	api.POST("/queue/sort", h.SortQueue)
	api.POST("/queue/clear", h.ClearQueue)

	api.POST("/patients", h.AdmitPatient)
	api.GET("/patients", h.FindPatients)

	api.GET("/served", h.ListServed)
	api.DELETE("/served/:id", h.RemoveServed)

	api.GET("/export", h.Export)
}

type admitRequest struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Priority int    `json:"priority"`
}

type queueResponse struct {
	Queue  []Patient            `json:"queue"`
	Served *pagination.Response `json:"served,omitempty"`
}

type serveResponse struct {
	Served  *Patient  `json:"served"`
	Message string    `json:"message"`
	Queue   []Patient `json:"queue"`
}

func (h *Handler) AdmitPatient(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AdmitPatient(c.Request().Context(), req.Name, req.Age, Priority(req.Priority))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetQueue(c echo.Context) error {
	pg := pagination.FromContext(c)
	served, total, err := h.svc.Served(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, queueResponse{
		Queue:  nonNil(h.svc.Queue()),
		Served: pagination.NewResponse(served, total, pg.Limit, pg.Offset),
	})
}

func (h *Handler) DisplayQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, queueResponse{Queue: nonNil(h.svc.Display())})
}

func (h *Handler) ServeNext(c echo.Context) error {
	p, ok, err := h.svc.ServeNext(c.Request().Context())
	if errors.Is(err, ErrNoLongerQueued) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := serveResponse{Queue: nonNil(h.svc.Queue())}
	if !ok {
		resp.Message = "No patients in queue."
		return c.JSON(http.StatusOK, resp)
	}
	resp.Served = &p
	resp.Message = "Served patient: " + p.Name + " (ID: " + strconv.Itoa(p.ID) + ")"
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SortQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, queueResponse{Queue: nonNil(h.svc.Sort(c.Request().Context()))})
}

func (h *Handler) ClearQueue(c echo.Context) error {
	n, err := h.svc.Clear(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cleared": n,
		"queue":   []Patient{},
	})
}

func (h *Handler) ListServed(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Served(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RemoveServed(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	found, err := h.svc.RemoveServed(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "patient with ID "+strconv.Itoa(id)+" not found in served list")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) QueueStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Status())
}

// FindPatients handles GET /patients?name=.
func (h *Handler) FindPatients(c echo.Context) error {
	rows, err := h.svc.FindPatients(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Reason)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) Export(c echo.Context) error {
	out, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func nonNil(ps []Patient) []Patient {
	if ps == nil {
		return []Patient{}
	}
	return ps
}
