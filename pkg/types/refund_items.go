package types

import (
	"database/sql/driver"

	"github.com/google/uuid"
)

// RefundItem is one line of an itemized refund request, persisted with
// the refund record as its audit trail.
type RefundItem struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
	Reason   string    `json:"reason,omitempty"`
}

// RefundItems is stored as a JSONB array column.
type RefundItems []RefundItem

func (r RefundItems) Value() (driver.Value, error) {
	if r == nil {
		return jsonbValue(RefundItems{})
	}
	return jsonbValue(r)
}

func (r *RefundItems) Scan(value any) error {
	return jsonbScan(value, r)
}
