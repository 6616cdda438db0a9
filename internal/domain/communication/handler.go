package communication

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nphies/bridge/internal/platform/nphies"
	"github.com/nphies/bridge/pkg/pagination"
)

type Handler struct {
	svc   *Service
	sched *Scheduler
}

func NewHandler(svc *Service, sched *Scheduler) *Handler {
	return &Handler{svc: svc, sched: sched}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/authorizations/:id")
	g.GET("/communications", h.ListCommunications)
	g.POST("/communications", h.SendCommunication)
	g.GET("/communication-requests", h.ListCommunicationRequests)
	g.POST("/poll", h.Poll)
	g.POST("/poll/cancel", h.CancelPoll)
	g.POST("/status-check", h.StatusCheck)
}

func subjectID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid authorization id")
	}
	return id, nil
}

// renderError maps the workflow error taxonomy onto HTTP responses. Every
// error goes through nphies.Normalize so the shape is uniform.
func renderError(c echo.Context, err error) error {
	n := nphies.Normalize(err)
	status := http.StatusInternalServerError
	switch n.Kind {
	case nphies.KindValidation:
		status = http.StatusBadRequest
	case nphies.KindTransport:
		status = http.StatusBadGateway
	case nphies.KindExchange:
		status = http.StatusBadGateway
	}
	return c.JSON(status, n)
}

func (h *Handler) ListCommunications(c echo.Context) error {
	id, err := subjectID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCommunications(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SendCommunication(c echo.Context) error {
	id, err := subjectID(c)
	if err != nil {
		return err
	}
	var input SendInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	comm, err := h.svc.Send(c.Request().Context(), id, input)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusCreated, comm)
}

func (h *Handler) ListCommunicationRequests(c echo.Context) error {
	id, err := subjectID(c)
	if err != nil {
		return err
	}
	if c.QueryParam("unresponded") == "true" {
		items, err := h.svc.FindUnrespondedRequests(c.Request().Context(), id)
		if err != nil {
			return renderError(c, err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), len(items), 0))
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCommunicationRequests(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Poll(c echo.Context) error {
	id, err := subjectID(c)
	if err != nil {
		return err
	}
	result, err := h.sched.Poll(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrPollInFlight) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		// An exchange error still carries the partial result with the
		// extracted issues; surface both.
		if result != nil {
			n := nphies.Normalize(err)
			return c.JSON(http.StatusBadGateway, map[string]interface{}{
				"error":  n,
				"result": result,
			})
		}
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) CancelPoll(c echo.Context) error {
	id, err := subjectID(c)
	if err != nil {
		return err
	}
	h.sched.Cancel(id)
	return c.JSON(http.StatusOK, map[string]string{"state": string(h.sched.StateOf(id))})
}

func (h *Handler) StatusCheck(c echo.Context) error {
	id, err := subjectID(c)
	if err != nil {
		return err
	}
	outcome, err := h.svc.StatusCheck(c.Request().Context(), id)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}
