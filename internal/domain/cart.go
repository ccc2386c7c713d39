package domain

import "github.com/shopspring/decimal"

// CartLine is one menu item in the cart. Quantity is always >= 1 while the line exists.
type CartLine struct {
	ItemID    int64           `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"image"`
}

// LineTotal is UnitPrice multiplied by Quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotals summarises a set of lines.
func CartTotals(lines []CartLine) (items int, price decimal.Decimal) {
	price = decimal.Zero
	for _, l := range lines {
		items += l.Quantity
		price = price.Add(l.LineTotal())
	}
	return items, price
}
