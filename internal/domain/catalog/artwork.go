package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gallery-app/internal/apperr"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusSold      Status = "sold"
	StatusReserved  Status = "reserved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusSold, StatusReserved:
		return true
	}
	return false
}

type Artwork struct {
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	Title       string          `gorm:"not null" json:"title"`
	Artist      string          `gorm:"not null;index" json:"artist"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Category    Category        `gorm:"type:varchar(32);not null;index" json:"category"`
	Status      Status          `gorm:"type:varchar(16);not null;default:'available';index" json:"status"`

	// ImagePath is the storage key; ImageURL is what clients load.
	ImagePath *string `json:"-"`
	ImageURL  *string `json:"image_url,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Artwork) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusAvailable
	}
	return nil
}

// Fields is the admin input for a new artwork.
type Fields struct {
	Title       string          `json:"title"`
	Artist      string          `json:"artist"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    Category        `json:"category"`
}

func (f *Fields) Normalize() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Artist = strings.TrimSpace(f.Artist)
	f.Description = strings.TrimSpace(f.Description)

	if f.Title == "" {
		return apperr.Validation("title is required")
	}
	if f.Artist == "" {
		return apperr.Validation("artist is required")
	}
	if f.Price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	c, ok := ParseCategory(string(f.Category))
	if !ok {
		return apperr.Validation("unknown category %q", f.Category)
	}
	f.Category = c
	return nil
}

func (f Fields) Artwork() Artwork {
	return Artwork{
		Title:       f.Title,
		Artist:      f.Artist,
		Description: f.Description,
		Price:       f.Price,
		Category:    f.Category,
		Status:      StatusAvailable,
	}
}

// Patch is a partial admin edit; nil fields are left alone. Status is not
// part of a patch, it only moves through SetStatus or order transitions.
type Patch struct {
	Title       *string          `json:"title"`
	Artist      *string          `json:"artist"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *Category        `json:"category"`
}

func (p *Patch) Normalize() error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return apperr.Validation("title is required")
		}
		p.Title = &t
	}
	if p.Artist != nil {
		a := strings.TrimSpace(*p.Artist)
		if a == "" {
			return apperr.Validation("artist is required")
		}
		p.Artist = &a
	}
	if p.Price != nil && p.Price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if p.Category != nil {
		c, ok := ParseCategory(string(*p.Category))
		if !ok {
			return apperr.Validation("unknown category %q", *p.Category)
		}
		p.Category = &c
	}
	return nil
}

// Updates returns the column map for the non-nil fields.
func (p Patch) Updates() map[string]any {
	u := map[string]any{}
	if p.Title != nil {
		u["title"] = *p.Title
	}
	if p.Artist != nil {
		u["artist"] = *p.Artist
	}
	if p.Description != nil {
		u["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		u["price"] = *p.Price
	}
	if p.Category != nil {
		u["category"] = *p.Category
	}
	return u
}

// Filter narrows artwork listings. Zero values mean "any".
type Filter struct {
	Category Category
	Status   Status
	Search   string
}
