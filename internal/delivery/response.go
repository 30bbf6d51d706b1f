package delivery

import (
	"errors"
	"net/http"
	"time"

	"shop_orders/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Paging  *Paging     `json:"paging,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Paging struct {
	CurrentPage int `json:"current_page"`
	TotalPage   int `json:"total_page"`
	TotalItem   int `json:"total_item"`
}

type ItemResponse struct {
	ID       uuid.UUID       `json:"id"`
	Product  uuid.UUID       `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID            uuid.UUID       `json:"id"`
	Owner         uuid.UUID       `json:"owner"`
	PaymentMethod *uuid.UUID      `json:"payment_method"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Note          string          `json:"note"`
	Items         []ItemResponse  `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]ItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemResponse{
			ID:       it.ID,
			Product:  it.ProductID,
			Quantity: it.Quantity,
			Price:    it.Price,
			Subtotal: it.Subtotal(),
		})
	}
	return OrderResponse{
		ID:            o.ID,
		Owner:         o.Owner,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount,
		Note:          o.Note,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func PageResponse(c *gin.Context, page *domain.Page) {
	data := make([]OrderResponse, 0, len(page.Data))
	for i := range page.Data {
		data = append(data, toOrderResponse(&page.Data[i]))
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Paging: &Paging{
			CurrentPage: page.CurrentPage,
			TotalPage:   page.TotalPage,
			TotalItem:   page.TotalItem,
		},
		Data: data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, message, detail string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Message: message,
		Error:   detail,
	})
}

// mapErrorToStatus classifies err by kind. Only client faults expose their
// detail; internal causes stay in the logs.
func mapErrorToStatus(err error) (int, string, string) {
	switch {
	case domain.IsClientError(err):
		return http.StatusBadRequest, "Invalid request", err.Error()
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found", ""
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Token invalid or missing", ""
	default:
		return http.StatusInternalServerError, "Internal server error", ""
	}
}
