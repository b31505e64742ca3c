// Package ledger records orders. Status changes go through the workflow
// controller; the ledger itself only ever inserts and reads.
package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"gallery-app/database"
	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
	"gallery-app/internal/metrics"
	"gallery-app/internal/workflow"
)

type Options struct {
	Timeout time.Duration
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

type Ledger struct {
	db       *gorm.DB
	gate     *access.Gate
	workflow *workflow.Controller
	timeout  time.Duration
	metrics  *metrics.Collector
	log      *slog.Logger
}

func New(db *gorm.DB, gate *access.Gate, wf *workflow.Controller, opts Options) *Ledger {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		db:       db,
		gate:     gate,
		workflow: wf,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		log:      log,
	}
}

// CheckoutRequest is what a buyer submits to buy one artwork.
type CheckoutRequest struct {
	ArtworkID       string                  `json:"artwork_id"`
	PaymentMethod   string                  `json:"payment_method"`
	TransactionRef  string                  `json:"transaction_ref"`
	ShippingAddress *orders.ShippingAddress `json:"shipping_address"`
}

func (r *CheckoutRequest) normalize() error {
	r.ArtworkID = strings.TrimSpace(r.ArtworkID)
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.TransactionRef = strings.TrimSpace(r.TransactionRef)
	if r.ArtworkID == "" {
		return apperr.Validation("artwork_id is required")
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = orders.DefaultPaymentMethod
	}
	if r.ShippingAddress != nil {
		return r.ShippingAddress.Normalize()
	}
	return nil
}

// Create opens a pending order for buyerID on an available artwork. The
// amount is the artwork's price at this instant, and the artwork is reserved
// in the same transaction.
func (l *Ledger) Create(ctx context.Context, caller access.Caller, buyerID string, req CheckoutRequest) (*orders.Order, error) {
	o, err := l.create(ctx, caller, buyerID, req)
	if err != nil {
		l.metrics.RecordCheckout(string(apperr.KindOf(err)))
		return nil, err
	}
	l.metrics.RecordCheckout("created")
	l.log.Info("order created",
		"order_id", o.ID,
		"artwork_id", o.ArtworkID,
		"buyer_id", o.UserID,
		"amount", o.Amount.StringFixed(2),
	)
	return o, nil
}

func (l *Ledger) create(ctx context.Context, caller access.Caller, buyerID string, req CheckoutRequest) (*orders.Order, error) {
	if err := l.gate.Authorize(caller, access.ActionCreateOrder, access.Resource{OwnerID: buyerID}); err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	// A transaction reference is payment evidence; buyers cannot choose it.
	if req.TransactionRef != "" {
		if err := l.gate.Authorize(caller, access.ActionTransitionOrder, access.Resource{}); err != nil {
			return nil, apperr.Forbidden("only an admin can set transaction_ref")
		}
	}

	db, cancel := database.WithTimeout(ctx, l.db, l.timeout)
	defer cancel()

	var o orders.Order
	err := db.Transaction(func(tx *gorm.DB) error {
		var buyer users.User
		if err := tx.First(&buyer, "id = ?", buyerID).Error; err != nil {
			return apperr.FromDB(err, "user", buyerID)
		}
		if !buyer.IsActive() {
			return apperr.Forbidden("account %s is inactive", buyerID)
		}

		var art catalog.Artwork
		if err := tx.First(&art, "id = ?", req.ArtworkID).Error; err != nil {
			return apperr.FromDB(err, "artwork", req.ArtworkID)
		}
		if art.Status != catalog.StatusAvailable {
			return apperr.Conflict("artwork %s is %s", art.ID, art.Status)
		}

		o = orders.Order{
			UserID:          buyer.ID,
			ArtworkID:       art.ID,
			Amount:          art.Price,
			Status:          orders.StatusPending,
			PaymentMethod:   req.PaymentMethod,
			ShippingAddress: req.ShippingAddress,
		}
		if req.TransactionRef != "" {
			var dup int64
			if err := tx.Model(&orders.Order{}).Where("transaction_ref = ?", req.TransactionRef).Count(&dup).Error; err != nil {
				return err
			}
			if dup > 0 {
				return apperr.Conflict("transaction reference %s is already recorded", req.TransactionRef)
			}
			o.TransactionRef = &req.TransactionRef
		}

		if err := l.workflow.Reserve(tx, &art); err != nil {
			return err
		}
		if err := tx.Create(&o).Error; err != nil {
			return err
		}
		o.Artwork = &art
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "order", "")
	}
	return &o, nil
}

// Get returns an order with its buyer and artwork inlined. Callers that may
// not read the order get NotFound.
func (l *Ledger) Get(ctx context.Context, caller access.Caller, id string) (*orders.Order, error) {
	if caller.IsAnonymous() {
		return nil, apperr.NotFound("order", id)
	}

	db, cancel := database.WithTimeout(ctx, l.db, l.timeout)
	defer cancel()

	var o orders.Order
	if err := db.Preload("User").Preload("Artwork").First(&o, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "order", id)
	}
	if err := l.gate.AuthorizeVisible(caller, access.ActionReadOrder, access.Resource{OwnerID: o.UserID}, "order", id); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByUser returns userID's orders, newest first.
func (l *Ledger) ListByUser(ctx context.Context, caller access.Caller, userID string) ([]orders.Order, error) {
	if err := l.gate.Authorize(caller, access.ActionListOwnOrders, access.Resource{OwnerID: userID}); err != nil {
		return nil, err
	}

	db, cancel := database.WithTimeout(ctx, l.db, l.timeout)
	defer cancel()

	var out []orders.Order
	err := db.Preload("Artwork").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.FromDB(err, "order", "")
	}
	return out, nil
}

// ListAll is the admin order listing. Search matches the artwork title or
// the buyer's name or email.
func (l *Ledger) ListAll(ctx context.Context, caller access.Caller, f orders.Filter) ([]orders.Order, error) {
	if err := l.gate.Authorize(caller, access.ActionListOrders, access.Resource{}); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown order status %q", f.Status)
	}

	db, cancel := database.WithTimeout(ctx, l.db, l.timeout)
	defer cancel()

	q := db.Model(&orders.Order{}).
		Select("orders.*").
		Joins("JOIN artworks ON artworks.id = orders.artwork_id").
		Joins("JOIN users ON users.id = orders.user_id").
		Preload("User").
		Preload("Artwork")
	if f.Status != "" {
		q = q.Where("orders.status = ?", f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := database.LikePattern(f.Search)
		q = q.Where(`(LOWER(artworks.title) LIKE ? ESCAPE '\' OR LOWER(users.name) LIKE ? ESCAPE '\' OR LOWER(users.email) LIKE ? ESCAPE '\')`, p, p, p)
	}

	var out []orders.Order
	if err := q.Order("orders.created_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.FromDB(err, "order", "")
	}
	return out, nil
}

// UpdateStatus hands the change to the workflow controller, which checks
// legality and moves the artwork with it.
func (l *Ledger) UpdateStatus(ctx context.Context, caller access.Caller, req workflow.Request) (*orders.Order, error) {
	return l.workflow.Transition(ctx, caller, req)
}
