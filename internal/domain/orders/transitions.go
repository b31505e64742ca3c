package orders

import "gallery-app/internal/domain/catalog"

// ReservedOnCheckout is the artwork status a new pending order puts in place.
const ReservedOnCheckout = catalog.StatusReserved

type edge struct{ from, to Status }

// transitions maps each legal order move to the artwork status it implies.
var transitions = map[edge]catalog.Status{
	{StatusPending, StatusCompleted}:   catalog.StatusSold,
	{StatusPending, StatusCancelled}:   catalog.StatusAvailable,
	{StatusCompleted, StatusCancelled}: catalog.StatusAvailable,
	{StatusCancelled, StatusCompleted}: catalog.StatusSold,
}

// ArtworkStatusAfter reports the artwork status that must accompany the move
// from -> to, and whether the move is legal at all.
func ArtworkStatusAfter(from, to Status) (catalog.Status, bool) {
	s, ok := transitions[edge{from, to}]
	return s, ok
}

// IsOverride reports whether from -> to re-opens a terminal order.
func IsOverride(from, to Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok && from.Terminal()
}

// BuyerMayApply reports whether the owning buyer (not an admin) may request
// from -> to. Only abandoning a pending order qualifies.
func BuyerMayApply(from, to Status) bool {
	return from == StatusPending && to == StatusCancelled
}
