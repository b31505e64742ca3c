// Package dashboard aggregates the admin overview figures.
package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"gallery-app/database"
	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
)

const recentLimit = 5

type RecentOrder struct {
	ID           string          `json:"id"`
	ArtworkTitle string          `json:"artwork_title"`
	BuyerName    string          `json:"buyer_name"`
	Amount       decimal.Decimal `json:"amount"`
	Status       orders.Status   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Stats struct {
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalArtworks int64           `json:"total_artworks"`
	ActiveUsers   int64           `json:"active_users"`
	PendingOrders int64           `json:"pending_orders"`
	RecentOrders  []RecentOrder   `json:"recent_orders"`
}

type Service struct {
	db      *gorm.DB
	gate    *access.Gate
	timeout time.Duration
}

func NewService(db *gorm.DB, gate *access.Gate, timeout time.Duration) *Service {
	return &Service{db: db, gate: gate, timeout: timeout}
}

// Stats runs the independent aggregate queries concurrently; the first
// failure cancels the rest.
func (s *Service) Stats(ctx context.Context, caller access.Caller) (*Stats, error) {
	if err := s.gate.Authorize(caller, access.ActionViewDashboard, access.Resource{}); err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)

	var st Stats
	g.Go(func() error {
		db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
		defer cancel()
		var sum decimal.NullDecimal
		err := db.Model(&orders.Order{}).
			Where("status = ?", orders.StatusCompleted).
			Select("SUM(amount)").
			Row().Scan(&sum)
		st.TotalSales = sum.Decimal
		return err
	})
	g.Go(func() error {
		db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
		defer cancel()
		return db.Model(&catalog.Artwork{}).Count(&st.TotalArtworks).Error
	})
	g.Go(func() error {
		db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
		defer cancel()
		return db.Model(&users.User{}).Where("status = ?", users.StatusActive).Count(&st.ActiveUsers).Error
	})
	g.Go(func() error {
		db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
		defer cancel()
		return db.Model(&orders.Order{}).Where("status = ?", orders.StatusPending).Count(&st.PendingOrders).Error
	})
	g.Go(func() error {
		db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
		defer cancel()
		var recent []orders.Order
		err := db.Preload("User").Preload("Artwork").
			Order("created_at DESC").
			Limit(recentLimit).
			Find(&recent).Error
		if err != nil {
			return err
		}
		st.RecentOrders = make([]RecentOrder, 0, len(recent))
		for _, o := range recent {
			r := RecentOrder{ID: o.ID, Amount: o.Amount, Status: o.Status, CreatedAt: o.CreatedAt}
			if o.Artwork != nil {
				r.ArtworkTitle = o.Artwork.Title
			}
			if o.User != nil {
				r.BuyerName = o.User.Name
			}
			st.RecentOrders = append(st.RecentOrders, r)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, apperr.FromDB(err, "dashboard", "")
	}
	return &st, nil
}
