package domain

// fulfilmentRank orders the fulfilment chain. Transitions move strictly
// forward along it; skipping intermediate steps is allowed (a carrier scan
// can jump shipped straight to delivered). Cancellation is handled separately
// because it is reachable from every non-terminal state.
var fulfilmentRank = map[OrderStatus]int{
	OrderStatusPending:        0,
	OrderStatusProcessing:     1,
	OrderStatusShipped:        2,
	OrderStatusOutForDelivery: 3,
	OrderStatusDelivered:      4,
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:    {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the lifecycle permits moving to target.
// Forward moves along the fulfilment chain are allowed, including skips;
// backward moves and moves out of a terminal state are not. Cancellation is
// allowed from any non-terminal state.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if target == OrderStatusCancelled {
		return !s.IsTerminal()
	}
	if s.IsTerminal() {
		return false
	}
	from, ok := fulfilmentRank[s]
	if !ok {
		return false
	}
	to, ok := fulfilmentRank[target]
	if !ok {
		return false
	}
	return to > from
}

// CanTransitionTo reports whether the payment settlement machine permits
// moving to target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether the value is a known lifecycle state.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether the value is a known settlement state.
func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}
