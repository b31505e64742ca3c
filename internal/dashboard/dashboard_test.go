package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
	"gallery-app/internal/testutil"
)

func TestStats(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, access.MustNewGate(), 5*time.Second)
	admin := testutil.CreateUser(t, db, "admin", users.RoleAdmin)
	buyer := testutil.CreateUser(t, db, "buyer", users.RoleUser)
	gone := testutil.CreateUser(t, db, "gone", users.RoleUser)
	require.NoError(t, db.Model(gone).Update("status", users.StatusInactive).Error)

	var last *orders.Order
	for i, st := range []orders.Status{
		orders.StatusCompleted, orders.StatusCompleted, orders.StatusPending,
		orders.StatusCancelled, orders.StatusPending, orders.StatusCompleted,
	} {
		art := testutil.CreateArtwork(t, db, "piece", int64(100*(i+1)), testutil.WithStatus(catalog.StatusReserved))
		o := testutil.CreateOrder(t, db, buyer, art, st)
		require.NoError(t, db.Model(o).UpdateColumn("created_at", time.Now().Add(time.Duration(i)*time.Minute)).Error)
		last = o
	}
	testutil.CreateArtwork(t, db, "unsold", 5)

	st, err := svc.Stats(context.Background(), testutil.CallerFor(admin))
	require.NoError(t, err)
	assert.True(t, st.TotalSales.Equal(decimal.NewFromInt(100+200+600)), "got %s", st.TotalSales)
	assert.Equal(t, int64(7), st.TotalArtworks)
	assert.Equal(t, int64(2), st.ActiveUsers)
	assert.Equal(t, int64(2), st.PendingOrders)
	require.Len(t, st.RecentOrders, 5)
	assert.Equal(t, last.ID, st.RecentOrders[0].ID)
	assert.Equal(t, "piece", st.RecentOrders[0].ArtworkTitle)
	assert.Equal(t, "buyer", st.RecentOrders[0].BuyerName)
}

func TestStats_Empty(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, access.MustNewGate(), 5*time.Second)
	admin := testutil.CreateUser(t, db, "admin", users.RoleAdmin)

	st, err := svc.Stats(context.Background(), testutil.CallerFor(admin))
	require.NoError(t, err)
	assert.True(t, st.TotalSales.IsZero())
	assert.Empty(t, st.RecentOrders)
}

func TestStats_NonAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, access.MustNewGate(), 5*time.Second)
	buyer := testutil.CreateUser(t, db, "buyer", users.RoleUser)

	_, err := svc.Stats(context.Background(), testutil.CallerFor(buyer))
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}
