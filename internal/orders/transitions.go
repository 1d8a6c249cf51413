package orders

import (
	"fmt"

	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"

	"github.com/lucasferreyra/webshop-backend/pkg/enums"
)

// manualTransitions lists the status changes an admin may apply
// directly. Refund statuses are reached only through the refund
// processor and lock the order against further manual changes.
var manualTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// ValidateTransition reports whether an order may move from current to
// next via a manual status update.
func ValidateTransition(current, next enums.OrderStatus) error {
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", next))
	}
	if next == enums.OrderStatusRefunded || next == enums.OrderStatusPartiallyRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refund statuses are set by the refund processor, not directly")
	}
	if current == enums.OrderStatusRefunded || current == enums.OrderStatusPartiallyRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status is locked after a refund")
	}
	if current == next {
		return nil
	}
	if next == enums.OrderStatusCancelled && (current == enums.OrderStatusShipped || current == enums.OrderStatusDelivered) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot cancel an order that has already been shipped; initiate a refund instead")
	}
	for _, allowed := range manualTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", current, next))
}

// ValidateCancellation guards the customer-facing cancel operation,
// which is stricter than the admin transition table. Orders that have
// left the warehouse get steered toward a refund rather than the
// generic rejection.
func ValidateCancellation(current enums.OrderStatus) error {
	switch current {
	case enums.OrderStatusProcessing:
		return nil
	case enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"shipped orders cannot be cancelled this way; request a refund instead")
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only processing orders can be cancelled")
	}
}
