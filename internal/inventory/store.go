package inventory

import (
	"context"
	"io"
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
)

// FileStore is the slice of object storage the catalog needs.
type FileStore interface {
	Upload(ctx context.Context, path string, r io.Reader) (string, error)
	Remove(ctx context.Context, paths ...string) error
}

type Options struct {
	Timeout time.Duration
	Files   FileStore
	Logger  *slog.Logger
}

// Store is the Catalog Store: artwork records and their availability.
type Store struct {
	db      *gorm.DB
	gate    *access.Gate
	files   FileStore
	timeout time.Duration
	log     *slog.Logger
}

func NewStore(db *gorm.DB, gate *access.Gate, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, gate: gate, files: opts.Files, timeout: opts.Timeout, log: log}
}

// ListAvailable returns available artworks, newest first. Search is a
// case-insensitive substring match on title or artist; Category is exact.
func (s *Store) ListAvailable(ctx context.Context, f catalog.Filter) ([]catalog.Artwork, error) {
	f.Status = catalog.StatusAvailable
	return s.list(ctx, f)
}

// List is the back-office listing. Non-admin callers only ever see available
// artworks, whatever status they ask for.
func (s *Store) List(ctx context.Context, caller access.Caller, f catalog.Filter) ([]catalog.Artwork, error) {
	if !caller.IsAdmin() {
		f.Status = catalog.StatusAvailable
	}
	return s.list(ctx, f)
}

func (s *Store) list(ctx context.Context, f catalog.Filter) ([]catalog.Artwork, error) {
	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	q := db.Model(&catalog.Artwork{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := database.LikePattern(f.Search)
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(artist) LIKE ? ESCAPE '\')`, p, p)
	}

	var out []catalog.Artwork
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.FromDB(err, "artwork", "")
	}
	return out, nil
}

// Get returns one artwork. Anonymous callers only see available artworks;
// anything else is reported as not found.
func (s *Store) Get(ctx context.Context, caller access.Caller, id string) (*catalog.Artwork, error) {
	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var a catalog.Artwork
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "artwork", id)
	}
	res := access.Resource{Public: a.Status == catalog.StatusAvailable}
	if err := s.gate.AuthorizeVisible(caller, access.ActionReadArtwork, res, "artwork", id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, caller access.Caller, f catalog.Fields) (*catalog.Artwork, error) {
	if err := s.gate.Authorize(caller, access.ActionManageCatalog, access.Resource{}); err != nil {
		return nil, err
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	a := f.Artwork()
	if err := db.Create(&a).Error; err != nil {
		return nil, apperr.FromDB(err, "artwork", "")
	}
	s.log.Info("artwork created", "artwork_id", a.ID, "by", caller.UserID)
	return &a, nil
}

// Update applies a partial edit. Existing orders keep the amount they were
// created with whatever happens to the price here.
func (s *Store) Update(ctx context.Context, caller access.Caller, id string, p catalog.Patch) (*catalog.Artwork, error) {
	if err := s.gate.Authorize(caller, access.ActionManageCatalog, access.Resource{}); err != nil {
		return nil, err
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var a catalog.Artwork
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, "id = ?", id).Error; err != nil {
			return err
		}
		if u := p.Updates(); len(u) > 0 {
			if err := tx.Model(&a).Updates(u).Error; err != nil {
				return err
			}
		}
		return tx.First(&a, "id = ?", id).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "artwork", id)
	}
	return &a, nil
}

// SetStatus is the admin's direct status edit. It is a no-op when the status
// is unchanged. Sold is only reachable through a completed order, and an
// artwork held by a pending or completed order cannot be moved by hand.
func (s *Store) SetStatus(ctx context.Context, caller access.Caller, id string, status catalog.Status) (*catalog.Artwork, error) {
	if err := s.gate.Authorize(caller, access.ActionManageCatalog, access.Resource{}); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation("unknown artwork status %q", status)
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var a catalog.Artwork
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, "id = ?", id).Error; err != nil {
			return err
		}
		if a.Status == status {
			return nil
		}
		if status == catalog.StatusSold {
			return apperr.Conflict("artwork %s can only become sold through a completed order", id)
		}
		n, err := countOrders(tx, id, orders.StatusPending, orders.StatusCompleted)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("artwork %s is held by an active order", id)
		}
		return ApplyStatus(tx, &a, status)
	})
	if err != nil {
		return nil, apperr.FromDB(err, "artwork", id)
	}
	return &a, nil
}

// Delete removes an artwork that no order references, then its image.
func (s *Store) Delete(ctx context.Context, caller access.Caller, id string) error {
	if err := s.gate.Authorize(caller, access.ActionManageCatalog, access.Resource{}); err != nil {
		return err
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var a catalog.Artwork
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, "id = ?", id).Error; err != nil {
			return err
		}
		n, err := countOrders(tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("artwork %s is referenced by %d order(s)", id, n)
		}
		return tx.Delete(&catalog.Artwork{}, "id = ?", id).Error
	})
	if err != nil {
		return apperr.FromDB(err, "artwork", id)
	}

	if a.ImagePath != nil && s.files != nil {
		if err := s.files.Remove(ctx, *a.ImagePath); err != nil {
			s.log.Warn("failed to remove artwork image", "artwork_id", id, "path", *a.ImagePath, "error", err)
		}
	}
	s.log.Info("artwork deleted", "artwork_id", id, "by", caller.UserID)
	return nil
}

// AttachImage uploads r as the artwork's image and drops the previous file.
// ext is the file extension including the dot.
func (s *Store) AttachImage(ctx context.Context, caller access.Caller, id, ext string, r io.Reader) (*catalog.Artwork, error) {
	if err := s.gate.Authorize(caller, access.ActionManageCatalog, access.Resource{}); err != nil {
		return nil, err
	}
	if s.files == nil {
		return nil, apperr.Unavailable(nil)
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var a catalog.Artwork
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "artwork", id)
	}
	previous := a.ImagePath

	path := "artworks/" + id + "/" + uuid.NewString() + ext
	url, err := s.files.Upload(ctx, path, r)
	if err != nil {
		return nil, err
	}

	if err := db.Model(&a).Updates(map[string]any{"image_path": path, "image_url": url}).Error; err != nil {
		_ = s.files.Remove(ctx, path)
		return nil, apperr.FromDB(err, "artwork", id)
	}

	if previous != nil {
		if err := s.files.Remove(ctx, *previous); err != nil {
			s.log.Warn("failed to remove replaced image", "artwork_id", id, "path", *previous, "error", err)
		}
	}
	a.ImagePath = &path
	a.ImageURL = &url
	return &a, nil
}

// ApplyStatus writes status inside tx; unchanged status is a no-op. The
// workflow controller calls it as part of an order transition.
func ApplyStatus(tx *gorm.DB, a *catalog.Artwork, status catalog.Status) error {
	if a.Status == status {
		return nil
	}
	if err := tx.Model(&catalog.Artwork{}).Where("id = ?", a.ID).Update("status", status).Error; err != nil {
		return err
	}
	a.Status = status
	return nil
}

// Reserve flips an available artwork to reserved inside tx. It fails with
// Conflict if the artwork is no longer available, which also covers two
// checkouts racing for the same piece.
func Reserve(tx *gorm.DB, a *catalog.Artwork) error {
	res := tx.Model(&catalog.Artwork{}).
		Where("id = ? AND status = ?", a.ID, catalog.StatusAvailable).
		Update("status", orders.ReservedOnCheckout)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("artwork %s is not available", a.ID)
	}
	a.Status = orders.ReservedOnCheckout
	return nil
}

func countOrders(tx *gorm.DB, artworkID string, statuses ...orders.Status) (int64, error) {
	q := tx.Model(&orders.Order{}).Where("artwork_id = ?", artworkID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
