package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/users"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// DefaultPaymentMethod is recorded when checkout does not name one.
const DefaultPaymentMethod = "credit_card"

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a *ShippingAddress) Normalize() error {
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Street == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return apperr.Validation("shipping address needs street, city, postal_code and country")
	}
	return nil
}

// Order holds one artwork purchase. Amount is captured at checkout and never
// rewritten; Version increments on every status write.
type Order struct {
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	UserID string      `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *users.User `gorm:"constraint:OnDelete:RESTRICT" json:"buyer,omitempty"`

	ArtworkID string           `gorm:"type:uuid;not null;index" json:"artwork_id"`
	Artwork   *catalog.Artwork `gorm:"constraint:OnDelete:RESTRICT" json:"artwork,omitempty"`

	Amount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status Status          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	PaymentMethod   string           `gorm:"type:varchar(32)" json:"payment_method,omitempty"`
	TransactionRef  *string          `gorm:"uniqueIndex:idx_orders_transaction_ref" json:"transaction_ref,omitempty"`
	ShippingAddress *ShippingAddress `gorm:"serializer:json" json:"shipping_address,omitempty"`

	Version int `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Version == 0 {
		o.Version = 1
	}
	return nil
}

// Filter narrows the admin order listing. Search matches artwork title or
// buyer name/email.
type Filter struct {
	Status Status
	Search string
}
