package httpserver

import (
	"net/http"

	"coffeehouse/internal/contact"
	"coffeehouse/internal/domain"
	"coffeehouse/internal/reservation"
	"github.com/gin-gonic/gin"
)

type menuResponse struct {
	Items []domain.MenuItem `json:"items"`
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
}

type reservationsResponse struct {
	Reservations []domain.Reservation `json:"reservations"`
}

func (h *handlers) listMenu(c *gin.Context) {
	items := h.deps.Menu.Items(c.Request.Context(), c.Query("category"))
	if items == nil {
		items = []domain.MenuItem{}
	}
	c.JSON(http.StatusOK, menuResponse{Items: items})
}

func (h *handlers) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, categoriesResponse{Categories: h.deps.Menu.Categories(c.Request.Context())})
}

func (h *handlers) getMenuItem(c *gin.Context) {
	id, err := itemIDParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	item, err := h.deps.Menu.Item(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// createReservation accepts guests; signed-in bookings are attributed to the identity.
func (h *handlers) createReservation(c *gin.Context) {
	var req reservation.Request
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	id, ok := h.currentIdentity(c)
	if !ok {
		return
	}
	r, err := h.deps.Reservations.Submit(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *handlers) listReservations(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	list, err := h.deps.Reservations.ListForOwner(c.Request.Context(), id.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	c.JSON(http.StatusOK, reservationsResponse{Reservations: list})
}

func (h *handlers) createContact(c *gin.Context) {
	var req contact.Message
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	msg, err := h.deps.Contact.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
