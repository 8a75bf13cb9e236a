package sellerboard

import (
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// allowed is the seller-driven order lifecycle. Terminal statuses have no entry.
var allowed = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusProcessing: {enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
}

// CanTransition reports whether a seller may move an order from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// reasonRequired lists the target statuses that need a seller note.
func reasonRequired(to enums.OrderStatus) bool {
	switch to {
	case enums.OrderStatusCancelled, enums.OrderStatusRefunded:
		return true
	default:
		return false
	}
}

func illegalTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from "+from.String()+" to "+to.String()).
		WithDetails(map[string]any{"from": from, "to": to})
}
