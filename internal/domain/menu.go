package domain

import "github.com/shopspring/decimal"

// MenuItem is a fixed-shape menu record. Records entering from the document store
// are validated before they become MenuItems.
type MenuItem struct {
	ID          int64           `json:"id" validate:"gt=0"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	ImageRef    string          `json:"image"`
	Popular     bool            `json:"popular"`
	Rating      float64         `json:"rating" validate:"gte=0,lte=5"`
}
