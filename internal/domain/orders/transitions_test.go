package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gallery-app/internal/domain/catalog"
)

func TestArtworkStatusAfter(t *testing.T) {
	all := []Status{StatusPending, StatusCompleted, StatusCancelled}
	legal := map[[2]Status]catalog.Status{
		{StatusPending, StatusCompleted}:   catalog.StatusSold,
		{StatusPending, StatusCancelled}:   catalog.StatusAvailable,
		{StatusCompleted, StatusCancelled}: catalog.StatusAvailable,
		{StatusCancelled, StatusCompleted}: catalog.StatusSold,
	}

	for _, from := range all {
		for _, to := range all {
			got, ok := ArtworkStatusAfter(from, to)
			want, wantOK := legal[[2]Status{from, to}]
			assert.Equal(t, wantOK, ok, "%s -> %s", from, to)
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestIsOverride(t *testing.T) {
	assert.False(t, IsOverride(StatusPending, StatusCompleted))
	assert.False(t, IsOverride(StatusPending, StatusCancelled))
	assert.True(t, IsOverride(StatusCompleted, StatusCancelled))
	assert.True(t, IsOverride(StatusCancelled, StatusCompleted))
	assert.False(t, IsOverride(StatusCompleted, StatusCompleted))
}

func TestBuyerMayApply(t *testing.T) {
	assert.True(t, BuyerMayApply(StatusPending, StatusCancelled))
	assert.False(t, BuyerMayApply(StatusPending, StatusCompleted))
	assert.False(t, BuyerMayApply(StatusCompleted, StatusCancelled))
}

func TestShippingAddress_Normalize(t *testing.T) {
	a := ShippingAddress{Street: " 1 Main St ", City: "Lyon", PostalCode: "69001", Country: "FR"}
	assert.NoError(t, a.Normalize())
	assert.Equal(t, "1 Main St", a.Street)

	assert.Error(t, (&ShippingAddress{Street: "1 Main St", City: "Lyon"}).Normalize())
}
