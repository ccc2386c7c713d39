package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus accepts the three known statuses, case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case OrderPending:
		return OrderPending, nil
	case OrderCompleted:
		return OrderCompleted, nil
	case OrderCancelled:
		return OrderCancelled, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

// Order is an immutable snapshot of a cart submitted at checkout.
type Order struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	OwnerEmail  string          `json:"ownerEmail"`
	OwnerName   string          `json:"ownerName"`
	Lines       []CartLine      `json:"lines"`
	TotalItems  int             `json:"totalItems"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Status      OrderStatus     `json:"status"`
}
