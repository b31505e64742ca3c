// Package stripe wraps the Stripe Checkout API and webhook verification
// behind the small surface the payments service needs.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	"github.com/stripe/stripe-go/v75/webhook"
)

// ErrSignature means the webhook payload failed verification.
var ErrSignature = errors.New("stripe signature verification failed")

// CheckoutInput describes one single-item payment.
type CheckoutInput struct {
	OrderID    string
	Title      string
	Amount     decimal.Decimal
	BuyerEmail string
}

type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type EventKind string

const (
	// EventPaid: the order's payment went through.
	EventPaid EventKind = "paid"
	// EventFailed: the checkout expired or the payment failed.
	EventFailed EventKind = "failed"
	// EventIgnored covers everything else, including sessions still awaiting
	// an asynchronous payment.
	EventIgnored EventKind = "ignored"
)

// Event is a verified webhook reduced to what settlement needs.
type Event struct {
	ID              string
	Type            string
	Kind            EventKind
	OrderID         string
	SessionID       string
	PaymentIntentID string
}

type sessionCreator interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

type Gateway struct {
	sessions      sessionCreator
	webhookSecret string
	currency      string
	appURL        string
}

func NewGateway(secretKey, webhookSecret, currency, appURL string) *Gateway {
	return &Gateway{
		sessions:      &checkoutsession.Client{B: stripeapi.GetBackend(stripeapi.APIBackend), Key: secretKey},
		webhookSecret: webhookSecret,
		currency:      strings.ToLower(currency),
		appURL:        strings.TrimRight(appURL, "/"),
	}
}

// minorUnits converts an amount to cents.
func minorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// CreateCheckout opens a hosted Checkout session in payment mode. The order
// id travels in the session metadata and client reference.
func (g *Gateway) CreateCheckout(ctx context.Context, in CheckoutInput) (*Checkout, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(g.appURL + "/orders/" + in.OrderID + "?paid=1"),
		CancelURL:         stripeapi.String(g.appURL + "/orders/" + in.OrderID + "?canceled=1"),
		ClientReferenceID: stripeapi.String(in.OrderID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Quantity: stripeapi.Int64(1),
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(g.currency),
					UnitAmount: stripeapi.Int64(minorUnits(in.Amount)),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String(in.Title),
					},
				},
			},
		},
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": in.OrderID},
		},
	}
	if in.BuyerEmail != "" {
		params.CustomerEmail = stripeapi.String(in.BuyerEmail)
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Checkout{SessionID: s.ID, URL: s.URL}, nil
}

// ParseEvent verifies a webhook delivery and classifies it.
func (g *Gateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type), Kind: EventIgnored}
	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.expired", "checkout.session.async_payment_failed":
	default:
		return out, nil
	}

	var s stripeapi.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	out.SessionID = s.ID
	out.OrderID = s.Metadata["order_id"]
	if out.OrderID == "" {
		out.OrderID = s.ClientReferenceID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if s.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired {
			out.Kind = EventPaid
		}
	default:
		out.Kind = EventFailed
	}
	return out, nil
}
