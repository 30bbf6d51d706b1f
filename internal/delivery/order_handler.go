package delivery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"shop_orders/internal/domain"
	"shop_orders/internal/middleware"
	"shop_orders/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type OrderHandler struct {
	useCase      usecase.OrderUseCase
	defaultLimit int
	log          *logrus.Logger
}

func NewOrderHandler(uc usecase.OrderUseCase, defaultLimit int, logger *logrus.Logger) *OrderHandler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &OrderHandler{
		useCase:      uc,
		defaultLimit: defaultLimit,
		log:          logger,
	}
}

func (h *OrderHandler) RegisterRoutes(router gin.IRouter) {
	orders := router.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:id", h.GetOrderByID)
		orders.PATCH("/:id", h.UpdateOrder)
		orders.GET("", h.ListOrders)
	}
}

// itemRequest accepts the product under either "product" or "product_id".
type itemRequest struct {
	Product   *string          `json:"product"`
	ProductID *string          `json:"product_id"`
	Quantity  *int             `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
}

func (r itemRequest) toDomain() domain.LineItemRequest {
	product := r.Product
	if product == nil {
		product = r.ProductID
	}
	return domain.LineItemRequest{ProductID: product, Quantity: r.Quantity, Price: r.Price}
}

func toLineItems(items []itemRequest) []domain.LineItemRequest {
	out := make([]domain.LineItemRequest, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out
}

type createOrderRequest struct {
	PaymentMethod *string       `json:"payment_method"`
	Note          string        `json:"note"`
	Items         []itemRequest `json:"items"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)

	var body createOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.log.Warnf("Handler: Failed to bind JSON for create order (user %s): %v", principal.UserID, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.log.Infof("Handler: Processing create order request for user %s", principal.UserID)

	order, err := h.useCase.CreateOrder(c.Request.Context(), principal, domain.CreateOrderPayload{
		PaymentMethod: body.PaymentMethod,
		Note:          body.Note,
		Items:         toLineItems(body.Items),
	})
	if err != nil {
		h.respondError(c, "create order", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Order created successfully", toOrderResponse(order))
}

func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	id := c.Param("id")

	order, err := h.useCase.GetOrder(c.Request.Context(), principal, id)
	if err != nil {
		h.respondError(c, "get order "+id, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Order retrieved successfully", toOrderResponse(order))
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	id := c.Param("id")

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.log.Warnf("Handler: Failed to bind JSON for update order %s: %v", id, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	patch, err := decodePatch(raw)
	if err != nil {
		h.log.Warnf("Handler: Malformed patch for order %s: %v", id, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.log.Infof("Handler: User %s updating order %s", principal.UserID, id)

	order, err := h.useCase.UpdateOrder(c.Request.Context(), principal, id, patch)
	if err != nil {
		h.respondError(c, "update order "+id, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Order updated successfully", toOrderResponse(order))
}

// decodePatch keeps track of which keys were present. A null
// payment_method clears it; a null items list replaces the items with none.
func decodePatch(raw map[string]json.RawMessage) (domain.OrderPatch, error) {
	var patch domain.OrderPatch

	if _, ok := raw["owner"]; ok {
		patch.OwnerSet = true
	}
	if v, ok := raw["status"]; ok {
		var status *string
		if err := json.Unmarshal(v, &status); err != nil {
			return patch, fmt.Errorf("status: %w", err)
		}
		if status == nil {
			empty := ""
			status = &empty
		}
		patch.Status = status
	}
	if v, ok := raw["payment_method"]; ok {
		patch.PaymentMethodSet = true
		if err := json.Unmarshal(v, &patch.PaymentMethod); err != nil {
			return patch, fmt.Errorf("payment_method: %w", err)
		}
	}
	if v, ok := raw["note"]; ok {
		var note *string
		if err := json.Unmarshal(v, &note); err != nil {
			return patch, fmt.Errorf("note: %w", err)
		}
		if note == nil {
			empty := ""
			note = &empty
		}
		patch.Note = note
	}
	if v, ok := raw["items"]; ok {
		var items []itemRequest
		if err := json.Unmarshal(v, &items); err != nil {
			return patch, fmt.Errorf("items: %w", err)
		}
		patch.ItemsSet = true
		patch.Items = toLineItems(items)
	}
	return patch, nil
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)

	page, err := queryInt(c, "page", 1)
	if err != nil {
		h.respondError(c, "list orders", err)
		return
	}
	limit, err := queryInt(c, "limit", h.defaultLimit)
	if err != nil {
		h.respondError(c, "list orders", err)
		return
	}

	result, err := h.useCase.ListOrders(c.Request.Context(), principal, domain.ListQuery{
		Status:        c.Query("status"),
		PaymentMethod: c.Query("payment_method"),
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		h.respondError(c, "list orders", err)
		return
	}
	PageResponse(c, result)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.Error{Kind: domain.ErrInvalidPagination, Field: key, Value: raw, Msg: "must be an integer"}
	}
	return n, nil
}

func (h *OrderHandler) respondError(c *gin.Context, action string, err error) {
	status, message, detail := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("Handler: Failed to %s: %v", action, err)
		_ = c.Error(err)
	} else {
		h.log.Warnf("Handler: Could not %s: %v", action, err)
	}
	ErrorResponse(c, status, message, detail)
}
