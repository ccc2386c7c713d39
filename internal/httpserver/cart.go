package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/metrics"
	"coffeehouse/internal/storefront"
	"coffeehouse/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type addLineRequest struct {
	ItemID int64            `json:"itemId" validate:"gt=0"`
	Name   string           `json:"name"`
	Price  *decimal.Decimal `json:"price"`
	Image  string           `json:"image"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type cartResponse struct {
	Lines      []domain.CartLine `json:"lines"`
	TotalItems int               `json:"totalItems"`
	TotalPrice string            `json:"totalPrice"`
}

type ordersResponse struct {
	Orders []domain.Order `json:"orders"`
}

func toCart(client *storefront.Client) cartResponse {
	lines := client.Cart.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return cartResponse{
		Lines:      lines,
		TotalItems: client.Cart.TotalItemCount(),
		TotalPrice: client.Cart.TotalPrice().StringFixed(2),
	}
}

func itemIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("item id must be a positive integer")
	}
	return id, nil
}

func (h *handlers) getCart(c *gin.Context) {
	var resp cartResponse
	if h.withClient(c, func(client *storefront.Client) error {
		resp = toCart(client)
		return nil
	}) {
		c.JSON(http.StatusOK, resp)
	}
}

// addLine takes line details from the menu when it knows the item, otherwise from the body.
func (h *handlers) addLine(c *gin.Context) {
	var req addLineRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	name, price, image := req.Name, req.Price, req.Image
	item, err := h.deps.Menu.Item(c.Request.Context(), req.ItemID)
	switch {
	case err == nil:
		name, price, image = item.Name, &item.Price, item.ImageRef
	case !errors.Is(err, domain.ErrNotFound):
		writeError(c, h.logger, err)
		return
	case name == "" || price == nil:
		writeError(c, h.logger, err)
		return
	}

	var resp cartResponse
	if h.withClient(c, func(client *storefront.Client) error {
		err := client.Cart.AddLine(c.Request.Context(), req.ItemID, name, *price, image)
		metrics.RecordCartOperation("add", err)
		if err != nil {
			return err
		}
		resp = toCart(client)
		return nil
	}) {
		c.JSON(http.StatusOK, resp)
	}
}

func (h *handlers) setQuantity(c *gin.Context) {
	id, err := itemIDParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var req quantityRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	var resp cartResponse
	if h.withClient(c, func(client *storefront.Client) error {
		err := client.Cart.SetQuantity(c.Request.Context(), id, *req.Quantity)
		metrics.RecordCartOperation("set_quantity", err)
		if err != nil {
			return err
		}
		resp = toCart(client)
		return nil
	}) {
		c.JSON(http.StatusOK, resp)
	}
}

func (h *handlers) removeLine(c *gin.Context) {
	id, err := itemIDParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var resp cartResponse
	if h.withClient(c, func(client *storefront.Client) error {
		err := client.Cart.RemoveLine(c.Request.Context(), id)
		metrics.RecordCartOperation("remove", err)
		if err != nil {
			return err
		}
		resp = toCart(client)
		return nil
	}) {
		c.JSON(http.StatusOK, resp)
	}
}

func (h *handlers) clearCart(c *gin.Context) {
	var resp cartResponse
	if h.withClient(c, func(client *storefront.Client) error {
		err := client.Cart.Clear(c.Request.Context())
		metrics.RecordCartOperation("clear", err)
		if err != nil {
			return err
		}
		resp = toCart(client)
		return nil
	}) {
		c.JSON(http.StatusOK, resp)
	}
}

func (h *handlers) checkout(c *gin.Context) {
	var order *domain.Order
	if h.withClient(c, func(client *storefront.Client) error {
		var err error
		order, err = client.Cart.Checkout(c.Request.Context())
		metrics.RecordCheckout(checkoutOutcome(err))
		return err
	}) {
		c.JSON(http.StatusCreated, order)
	}
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.CheckoutSuccess
	case errors.Is(err, domain.ErrNotAuthenticated):
		return metrics.CheckoutUnauthenticated
	case errors.Is(err, domain.ErrEmptyCart):
		return metrics.CheckoutEmpty
	default:
		return metrics.CheckoutError
	}
}

func (h *handlers) listOrders(c *gin.Context) {
	var resp ordersResponse
	if h.withClient(c, func(client *storefront.Client) error {
		resp.Orders = client.Cart.OrderHistory()
		return nil
	}) {
		c.JSON(http.StatusOK, orNoOrders(resp))
	}
}

func (h *handlers) refreshOrders(c *gin.Context) {
	var resp ordersResponse
	if h.withClient(c, func(client *storefront.Client) error {
		if err := client.Cart.RefreshOrderHistory(c.Request.Context()); err != nil {
			return err
		}
		resp.Orders = client.Cart.OrderHistory()
		return nil
	}) {
		c.JSON(http.StatusOK, orNoOrders(resp))
	}
}

func orNoOrders(r ordersResponse) ordersResponse {
	if r.Orders == nil {
		r.Orders = []domain.Order{}
	}
	return r
}
