// Package payments starts card checkouts for pending orders and settles
// them from verified Stripe webhooks.
package payments

import (
	"context"
	"errors"
	"log/slog"

	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/orders"
	stripeinfra "gallery-app/internal/infra/stripe"
	"gallery-app/internal/ledger"
	"gallery-app/internal/workflow"
)

// PaymentMethod is recorded on orders settled through Stripe.
const PaymentMethod = "stripe"

type Gateway interface {
	CreateCheckout(ctx context.Context, in stripeinfra.CheckoutInput) (*stripeinfra.Checkout, error)
}

type Service struct {
	ledger  *ledger.Ledger
	gate    *access.Gate
	gateway Gateway
	log     *slog.Logger
}

func NewService(l *ledger.Ledger, gate *access.Gate, gw Gateway, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: l, gate: gate, gateway: gw, log: log}
}

// StartCheckout opens a Stripe Checkout session for the caller's own
// pending order.
func (s *Service) StartCheckout(ctx context.Context, caller access.Caller, orderID string) (*stripeinfra.Checkout, error) {
	if s.gateway == nil {
		return nil, apperr.Unavailable(errors.New("card payments are not configured"))
	}
	o, err := s.ledger.Get(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(caller, access.ActionPayOrder, access.Resource{OwnerID: o.UserID}); err != nil {
		return nil, err
	}
	if o.Status != orders.StatusPending {
		return nil, apperr.Conflict("order %s is %s", o.ID, o.Status)
	}

	in := stripeinfra.CheckoutInput{OrderID: o.ID, Amount: o.Amount}
	if o.Artwork != nil {
		in.Title = o.Artwork.Title + " by " + o.Artwork.Artist
	}
	if o.User != nil {
		in.BuyerEmail = o.User.Email
	}
	co, err := s.gateway.CreateCheckout(ctx, in)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	s.log.Info("checkout session created", "order_id", o.ID, "session_id", co.SessionID)
	return co, nil
}

// Settle applies a verified webhook event. Redelivered events are
// acknowledged without changing anything. A payment that arrives after its
// order was cancelled revives the order when the artwork is still free;
// otherwise it is logged for a refund.
func (s *Service) Settle(ctx context.Context, ev *stripeinfra.Event) error {
	if ev.Kind == stripeinfra.EventIgnored {
		return nil
	}
	if ev.OrderID == "" {
		s.log.Warn("stripe event without order reference", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	system := access.System()
	o, err := s.ledger.Get(ctx, system, ev.OrderID)
	if errors.Is(err, apperr.ErrNotFound) {
		s.log.Warn("stripe event for unknown order", "event_id", ev.ID, "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	switch ev.Kind {
	case stripeinfra.EventPaid:
		return s.settlePaid(ctx, ev, o)
	case stripeinfra.EventFailed:
		if o.Status != orders.StatusPending {
			s.log.Info("stripe failure for settled order ignored", "event_id", ev.ID, "order_id", o.ID, "status", o.Status)
			return nil
		}
		return s.apply(ctx, ev, workflow.Request{OrderID: o.ID, To: orders.StatusCancelled, ExpectedVersion: o.Version})
	}
	return nil
}

func (s *Service) settlePaid(ctx context.Context, ev *stripeinfra.Event, o *orders.Order) error {
	req := workflow.Request{
		OrderID:         o.ID,
		To:              orders.StatusCompleted,
		ExpectedVersion: o.Version,
		TransactionRef:  ev.PaymentIntentID,
		PaymentMethod:   PaymentMethod,
	}

	switch o.Status {
	case orders.StatusPending:
		return s.apply(ctx, ev, req)
	case orders.StatusCompleted:
		if o.TransactionRef != nil && *o.TransactionRef == ev.PaymentIntentID {
			return nil
		}
		s.log.Error("payment for already completed order, refund required",
			"event_id", ev.ID, "order_id", o.ID, "payment_intent", ev.PaymentIntentID)
		return nil
	}

	err := s.apply(ctx, ev, req)
	if errors.Is(err, apperr.ErrConflict) {
		s.log.Error("payment for cancelled order could not be applied, refund required",
			"event_id", ev.ID, "order_id", o.ID, "payment_intent", ev.PaymentIntentID, "err", err)
		return nil
	}
	return err
}

func (s *Service) apply(ctx context.Context, ev *stripeinfra.Event, req workflow.Request) error {
	if _, err := s.ledger.UpdateStatus(ctx, access.System(), req); err != nil {
		if errors.Is(err, apperr.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	s.log.Info("order settled from stripe", "event_id", ev.ID, "order_id", req.OrderID, "to", req.To)
	return nil
}
