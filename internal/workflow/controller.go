// Package workflow owns every order status change and the artwork status
// that has to move with it. Both writes happen in one transaction.
package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gallery-app/database"
	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/inventory"
	"gallery-app/internal/metrics"
)

type Options struct {
	Timeout time.Duration
	// CancelWindow bounds how long after checkout a buyer may cancel their
	// own pending order. Zero means no limit.
	CancelWindow time.Duration
	Metrics      *metrics.Collector
	Logger       *slog.Logger
	Now          func() time.Time
}

type Controller struct {
	db           *gorm.DB
	gate         *access.Gate
	timeout      time.Duration
	cancelWindow time.Duration
	metrics      *metrics.Collector
	log          *slog.Logger
	now          func() time.Time
}

func NewController(db *gorm.DB, gate *access.Gate, opts Options) *Controller {
	c := &Controller{
		db:           db,
		gate:         gate,
		timeout:      opts.Timeout,
		cancelWindow: opts.CancelWindow,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		now:          opts.Now,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Request asks for one order to move to To.
type Request struct {
	OrderID string
	To      orders.Status
	// ExpectedVersion, when non-zero, must match the stored order version.
	ExpectedVersion int
	// TransactionRef and PaymentMethod are recorded on completion.
	TransactionRef string
	PaymentMethod  string
}

// Transition applies req and returns the order as stored afterwards.
//
// Checks run in this order: caller identity, order lookup, visibility,
// privilege, expected version, transition legality. Any failure leaves the
// order and its artwork untouched.
func (c *Controller) Transition(ctx context.Context, caller access.Caller, req Request) (*orders.Order, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Forbidden("sign in to change orders")
	}
	if !req.To.Valid() {
		return nil, apperr.Validation("unknown order status %q", req.To)
	}
	req.TransactionRef = strings.TrimSpace(req.TransactionRef)

	db, cancel := database.WithTimeout(ctx, c.db, c.timeout)
	defer cancel()

	var (
		o    orders.Order
		from orders.Status
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&o, "id = ?", req.OrderID).Error; err != nil {
			return err
		}
		from = o.Status

		if err := c.authorize(caller, &o, req.To); err != nil {
			return err
		}
		if req.ExpectedVersion != 0 && req.ExpectedVersion != o.Version {
			return apperr.Conflict("order %s is at version %d, not %d", o.ID, o.Version, req.ExpectedVersion)
		}

		artStatus, ok := orders.ArtworkStatusAfter(o.Status, req.To)
		if !ok {
			return apperr.InvalidTransition(string(o.Status), string(req.To))
		}

		var art catalog.Artwork
		if err := tx.First(&art, "id = ?", o.ArtworkID).Error; err != nil {
			return err
		}

		updates := map[string]any{
			"status":  req.To,
			"version": o.Version + 1,
		}
		if req.To == orders.StatusCompleted {
			ref, err := c.completionRef(tx, &o, req.TransactionRef)
			if err != nil {
				return err
			}
			updates["transaction_ref"] = ref
			if req.PaymentMethod != "" {
				updates["payment_method"] = req.PaymentMethod
			}
		}

		res := tx.Model(&orders.Order{}).
			Where("id = ? AND version = ?", o.ID, o.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("order %s was changed concurrently", o.ID)
		}

		if err := inventory.ApplyStatus(tx, &art, artStatus); err != nil {
			return err
		}
		return tx.First(&o, "id = ?", o.ID).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "order", req.OrderID)
	}

	c.metrics.RecordTransition(string(from), string(o.Status))
	c.log.Info("order transitioned",
		"order_id", o.ID,
		"from", from,
		"to", o.Status,
		"override", orders.IsOverride(from, o.Status),
		"by", caller.UserID,
	)
	return &o, nil
}

// Reserve places the checkout hold on art inside the ledger's transaction.
func (c *Controller) Reserve(tx *gorm.DB, art *catalog.Artwork) error {
	return inventory.Reserve(tx, art)
}

func (c *Controller) authorize(caller access.Caller, o *orders.Order, to orders.Status) error {
	if caller.IsAdmin() {
		return c.gate.Authorize(caller, access.ActionTransitionOrder, access.Resource{})
	}

	res := access.Resource{OwnerID: o.UserID}
	if err := c.gate.AuthorizeVisible(caller, access.ActionReadOrder, res, "order", o.ID); err != nil {
		return err
	}
	if !orders.BuyerMayApply(o.Status, to) {
		return apperr.Forbidden("only an admin can move an order from %s to %s", o.Status, to)
	}
	if err := c.gate.Authorize(caller, access.ActionCancelOrder, res); err != nil {
		return err
	}
	if c.cancelWindow > 0 && c.now().Sub(o.CreatedAt) > c.cancelWindow {
		return apperr.Forbidden("the cancellation window for order %s has closed", o.ID)
	}
	return nil
}

// completionRef picks the transaction reference for a move into completed and
// checks that nothing else already holds the artwork or the reference.
func (c *Controller) completionRef(tx *gorm.DB, o *orders.Order, requested string) (string, error) {
	var held int64
	err := tx.Model(&orders.Order{}).
		Where("artwork_id = ? AND id <> ? AND status IN ?", o.ArtworkID, o.ID,
			[]orders.Status{orders.StatusPending, orders.StatusCompleted}).
		Count(&held).Error
	if err != nil {
		return "", err
	}
	if held > 0 {
		return "", apperr.Conflict("artwork %s is held by another order", o.ArtworkID)
	}

	ref := requested
	if ref == "" && o.TransactionRef != nil {
		ref = *o.TransactionRef
	}
	if ref == "" {
		return "TXN-" + uuid.NewString(), nil
	}

	var dup int64
	if err := tx.Model(&orders.Order{}).
		Where("transaction_ref = ? AND id <> ?", ref, o.ID).
		Count(&dup).Error; err != nil {
		return "", err
	}
	if dup > 0 {
		return "", apperr.Conflict("transaction reference %s is already recorded", ref)
	}
	return ref, nil
}
