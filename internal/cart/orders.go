package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
)

var errMissingOwner = errors.New("order without ownerId")

// orderFields is the orders document layout. Lines travel as a JSON string because the
// hosted store has no nested attribute type.
func orderFields(o domain.Order) (map[string]interface{}, error) {
	lines, err := encodeLines(o.Lines)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"ownerId":     o.OwnerID,
		"ownerEmail":  o.OwnerEmail,
		"ownerName":   o.OwnerName,
		"lines":       lines,
		"totalItems":  o.TotalItems,
		"totalPrice":  o.TotalPrice.InexactFloat64(),
		"submittedAt": o.SubmittedAt.Format(time.RFC3339Nano),
		"status":      string(o.Status),
	}, nil
}

// orderFromDocument validates a stored order.
func orderFromDocument(doc remote.Document) (domain.Order, error) {
	f := doc.Fields
	o := domain.Order{
		ID:         doc.ID,
		OwnerID:    remote.String(f, "ownerId"),
		OwnerEmail: remote.String(f, "ownerEmail"),
		OwnerName:  remote.String(f, "ownerName"),
	}
	if o.OwnerID == "" {
		return domain.Order{}, errMissingOwner
	}

	lines, err := linesField(f["lines"])
	if err != nil {
		return domain.Order{}, fmt.Errorf("lines: %w", err)
	}
	o.Lines = lines

	items, price := domain.CartTotals(lines)
	if n, ok := remote.Int64(f, "totalItems"); ok {
		o.TotalItems = int(n)
	} else {
		o.TotalItems = items
	}
	if p, ok := remote.Decimal(f, "totalPrice"); ok {
		o.TotalPrice = p
	} else {
		o.TotalPrice = price
	}

	if t, ok := remote.Time(f, "submittedAt"); ok {
		o.SubmittedAt = t
	} else {
		o.SubmittedAt = doc.CreatedAt
	}

	status := remote.String(f, "status")
	if status == "" {
		status = string(domain.OrderPending)
	}
	o.Status, err = domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func linesField(v interface{}) ([]domain.CartLine, error) {
	switch raw := v.(type) {
	case nil:
		return nil, nil
	case string:
		return decodeLines(raw)
	default:
		buf, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		return decodeLines(string(buf))
	}
}
