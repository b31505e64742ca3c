// Package testutil builds migrated in-memory databases and fixtures for
// package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gallery-app/database"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
)

// NewDB returns a fresh, migrated SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite:file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, name string, role users.Role) *users.User {
	t.Helper()
	u := &users.User{
		Name:   name,
		Email:  name + "@example.com",
		Role:   role,
		Status: users.StatusActive,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CallerFor builds the session context the HTTP layer would derive for u.
func CallerFor(u *users.User) access.Caller {
	return access.Caller{UserID: u.ID, Email: u.Email, Role: u.Role}
}

type ArtworkOption func(*catalog.Artwork)

func WithStatus(s catalog.Status) ArtworkOption {
	return func(a *catalog.Artwork) { a.Status = s }
}

func WithCategory(c catalog.Category) ArtworkOption {
	return func(a *catalog.Artwork) { a.Category = c }
}

func WithArtist(name string) ArtworkOption {
	return func(a *catalog.Artwork) { a.Artist = name }
}

func WithCreatedAt(ts time.Time) ArtworkOption {
	return func(a *catalog.Artwork) { a.CreatedAt = ts }
}

func CreateArtwork(t *testing.T, db *gorm.DB, title string, price int64, opts ...ArtworkOption) *catalog.Artwork {
	t.Helper()
	a := &catalog.Artwork{
		Title:    title,
		Artist:   "Unknown",
		Price:    decimal.NewFromInt(price),
		Category: catalog.CategoryOther,
		Status:   catalog.StatusAvailable,
	}
	for _, opt := range opts {
		opt(a)
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// CreateOrder inserts an order row directly, bypassing checkout.
func CreateOrder(t *testing.T, db *gorm.DB, buyer *users.User, art *catalog.Artwork, status orders.Status) *orders.Order {
	t.Helper()
	o := &orders.Order{
		UserID:    buyer.ID,
		ArtworkID: art.ID,
		Amount:    art.Price,
		Status:    status,
	}
	require.NoError(t, db.Create(o).Error)
	return o
}

func ReloadArtwork(t *testing.T, db *gorm.DB, id string) *catalog.Artwork {
	t.Helper()
	var a catalog.Artwork
	require.NoError(t, db.First(&a, "id = ?", id).Error)
	return &a
}

func ReloadOrder(t *testing.T, db *gorm.DB, id string) *orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, db.First(&o, "id = ?", id).Error)
	return &o
}

func CountOrders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&orders.Order{}).Count(&n).Error)
	return n
}
