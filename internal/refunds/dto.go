package refunds

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemRequest asks to refund a quantity of one order line. Reason, when
// set, overrides the request-level reason for that line.
type ItemRequest struct {
	ItemID   uuid.UUID
	Quantity int
	Reason   string
}

// Input describes one refund request. Exactly one of Items or Amount
// drives the refund: Items computes the amount from line prices plus
// allocated tax and shipping, Amount refunds a flat major-unit figure.
type Input struct {
	OrderID     uuid.UUID
	Items       []ItemRequest
	Amount      *decimal.Decimal
	Reason      string
	ProcessedBy string
}

// SideEffects reports how the refund's best-effort followups went.
// They never fail the refund itself but callers may want to surface or
// retry them.
type SideEffects struct {
	InventoryRestored bool
	InventoryError    string
}

// Result reports the processed refund back to the caller.
type Result struct {
	RefundID    string
	AmountCents int64
	Amount      decimal.Decimal
	Message     string
	SideEffects SideEffects
}

const (
	modeItems  = "items"
	modeAmount = "amount"
)
