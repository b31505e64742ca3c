// Package accounts is the admin view over user records: listing, detail and
// role/status changes.
package accounts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"gallery-app/database"
	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
)

// SessionRevoker ends a user's sessions when they are deactivated.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type Service struct {
	db       *gorm.DB
	gate     *access.Gate
	sessions SessionRevoker
	timeout  time.Duration
	log      *slog.Logger
}

func NewService(db *gorm.DB, gate *access.Gate, sessions SessionRevoker, timeout time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, gate: gate, sessions: sessions, timeout: timeout, log: log}
}

type Filter struct {
	Search string
	Role   users.Role
	Status users.Status
}

// Detail is a user with their order history.
type Detail struct {
	User   users.User     `json:"user"`
	Orders []orders.Order `json:"orders"`
}

// Change is a partial role/status edit.
type Change struct {
	Role   *users.Role   `json:"role"`
	Status *users.Status `json:"status"`
}

func (s *Service) List(ctx context.Context, caller access.Caller, f Filter) ([]users.User, error) {
	if err := s.gate.Authorize(caller, access.ActionManageUsers, access.Resource{}); err != nil {
		return nil, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, apperr.Validation("unknown role %q", f.Role)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown user status %q", f.Status)
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	q := db.Model(&users.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := database.LikePattern(f.Search)
		q = q.Where(`(LOWER(email) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\')`, p, p)
	}

	var out []users.User
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.FromDB(err, "user", "")
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (*Detail, error) {
	if err := s.gate.Authorize(caller, access.ActionManageUsers, access.Resource{}); err != nil {
		return nil, err
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var d Detail
	if err := db.First(&d.User, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "user", id)
	}
	if err := db.Preload("Artwork").Where("user_id = ?", id).Order("created_at DESC").Find(&d.Orders).Error; err != nil {
		return nil, apperr.FromDB(err, "order", "")
	}
	return &d, nil
}

// Update changes role and/or status. Admins cannot demote or deactivate
// themselves; deactivating a user ends their sessions.
func (s *Service) Update(ctx context.Context, caller access.Caller, id string, ch Change) (*users.User, error) {
	if err := s.gate.Authorize(caller, access.ActionManageUsers, access.Resource{}); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if ch.Role != nil {
		if !ch.Role.Valid() {
			return nil, apperr.Validation("unknown role %q", *ch.Role)
		}
		if id == caller.UserID && *ch.Role != users.RoleAdmin {
			return nil, apperr.Conflict("admins cannot remove their own admin role")
		}
		updates["role"] = *ch.Role
	}
	if ch.Status != nil {
		if !ch.Status.Valid() {
			return nil, apperr.Validation("unknown user status %q", *ch.Status)
		}
		if id == caller.UserID && *ch.Status != users.StatusActive {
			return nil, apperr.Conflict("admins cannot deactivate themselves")
		}
		updates["status"] = *ch.Status
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("nothing to update")
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var u users.User
	var deactivated bool
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			return err
		}
		deactivated = u.IsActive() && ch.Status != nil && *ch.Status == users.StatusInactive
		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&u, "id = ?", id).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "user", id)
	}

	s.log.Info("user updated", "user_id", id, "role", u.Role, "status", u.Status, "by", caller.UserID)
	if deactivated && s.sessions != nil {
		if err := s.sessions.RevokeAll(ctx, id); err != nil {
			s.log.Warn("failed to revoke sessions of deactivated user", "user_id", id, "error", err)
		}
	}
	return &u, nil
}
