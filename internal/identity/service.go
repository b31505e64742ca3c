// Package identity signs users up and in, and turns session tokens back into
// an explicit access.Caller for each request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"gallery-app/database"
	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/users"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type Options struct {
	Secret     []byte
	SessionTTL time.Duration
	Timeout    time.Duration
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
	Notifier *Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

type Service struct {
	db       *gorm.DB
	secret   []byte
	ttl      time.Duration
	timeout  time.Duration
	cost     int
	notifier *Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, opts Options) *Service {
	s := &Service{
		db:       db,
		secret:   opts.Secret,
		ttl:      opts.SessionTTL,
		timeout:  opts.Timeout,
		cost:     opts.HashCost,
		notifier: opts.Notifier,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Session is an authenticated session as handed to clients.
type Session struct {
	Token     string      `json:"token"`
	ID        string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *users.User `json:"user"`
}

// Caller is the per-request context derived from the session.
func (s *Session) Caller() access.Caller {
	return access.Caller{
		UserID:    s.User.ID,
		Email:     s.User.Email,
		Role:      s.User.Role,
		SessionID: s.ID,
	}
}

type claims struct {
	SessionID string     `json:"sid"`
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Role      users.Role `json:"role"`
	jwt.RegisteredClaims
}

type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func isPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter := false
	hasDigit := false
	for _, c := range password {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
			hasLetter = true
		case '0' <= c && c <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates the user record and opens its first session.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if !emailPattern.MatchString(email) {
		return nil, apperr.Validation("invalid email format")
	}
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if !isPasswordStrong(in.Password) {
		return nil, apperr.Validation("password must be at least 8 characters long and contain both letters and numbers")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	pw := string(hashed)

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	now := s.now()
	u := users.User{
		Email:        email,
		Name:         name,
		Password:     &pw,
		AuthProvider: "local",
		Role:         users.RoleUser,
		Status:       users.StatusActive,
		LastLogin:    &now,
	}
	var sess *Session
	err = db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&users.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("an account with email %s already exists", email)
		}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		var err error
		sess, err = s.openSession(tx, &u)
		return err
	})
	if err != nil {
		return nil, apperr.FromDB(err, "user", email)
	}

	s.log.Info("user signed up", "user_id", u.ID)
	s.publish(EventSignedIn, sess)
	return sess, nil
}

// SignIn checks email and password and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var u users.User
	if err := db.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthenticated("invalid credentials")
		}
		return nil, apperr.FromDB(err, "user", email)
	}
	if u.Password == nil || *u.Password == "" {
		return nil, apperr.Unauthenticated("this account uses Google sign-in")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*u.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	return s.login(db, &u)
}

// SignInWithGoogle links or creates the user behind a verified Google
// profile and opens a session.
func (s *Service) SignInWithGoogle(ctx context.Context, p GoogleProfile) (*Session, error) {
	email := normalizeEmail(p.Email)
	if p.Subject == "" || email == "" {
		return nil, apperr.Unauthenticated("google profile is missing subject or email")
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var u users.User
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("google_sub = ?", p.Subject).First(&u).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		sub := p.Subject
		err = tx.Where("email = ?", email).First(&u).Error
		switch {
		case err == nil:
			return tx.Model(&u).Updates(map[string]any{"google_sub": sub}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			u = users.User{
				Email:        email,
				Name:         firstNonEmpty(p.Name, email),
				AuthProvider: "google",
				GoogleSub:    &sub,
				Role:         users.RoleUser,
				Status:       users.StatusActive,
			}
			return tx.Create(&u).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, apperr.FromDB(err, "user", email)
	}
	return s.login(db, &u)
}

func (s *Service) login(db *gorm.DB, u *users.User) (*Session, error) {
	if !u.IsActive() {
		return nil, apperr.Forbidden("account is inactive")
	}

	now := s.now()
	var sess *Session
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(u).Update("last_login", now).Error; err != nil {
			return err
		}
		u.LastLogin = &now
		var err error
		sess, err = s.openSession(tx, u)
		return err
	})
	if err != nil {
		return nil, apperr.FromDB(err, "user", u.ID)
	}

	s.log.Info("user signed in", "user_id", u.ID, "provider", u.AuthProvider)
	s.publish(EventSignedIn, sess)
	return sess, nil
}

func (s *Service) openSession(tx *gorm.DB, u *users.User) (*Session, error) {
	now := s.now()
	row := users.Session{UserID: u.ID, ExpiresAt: now.Add(s.ttl)}
	if err := tx.Create(&row).Error; err != nil {
		return nil, err
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: row.ID,
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("sign token: %w", err))
	}
	return &Session{Token: signed, ID: row.ID, ExpiresAt: row.ExpiresAt, User: u}, nil
}

// GetSession resolves a token. It returns nil, nil when the token is invalid,
// expired or revoked, or when its user has been deactivated; an error means
// the lookup itself failed.
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || c.SessionID == "" {
		return nil, nil
	}

	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var row users.Session
	if err := db.Preload("User").First(&row, "id = ?", c.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.FromDB(err, "session", c.SessionID)
	}
	if !row.Live(s.now()) || row.User == nil || !row.User.IsActive() {
		return nil, nil
	}
	return &Session{Token: token, ID: row.ID, ExpiresAt: row.ExpiresAt, User: row.User}, nil
}

// SignOut revokes one session. Revoking an unknown or already revoked
// session is not an error.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	var row users.Session
	if err := db.First(&row, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.FromDB(err, "session", sessionID)
	}
	if row.RevokedAt != nil {
		return nil
	}
	if err := db.Model(&row).Update("revoked_at", s.now()).Error; err != nil {
		return apperr.FromDB(err, "session", sessionID)
	}

	s.notifier.Publish(Event{Kind: EventSignedOut, UserID: row.UserID, SessionID: row.ID, At: s.now()})
	return nil
}

// RevokeAll ends every live session of userID.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	db, cancel := database.WithTimeout(ctx, s.db, s.timeout)
	defer cancel()

	res := db.Model(&users.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if res.Error != nil {
		return apperr.FromDB(res.Error, "session", "")
	}
	if res.RowsAffected > 0 {
		s.log.Info("sessions revoked", "user_id", userID, "count", res.RowsAffected)
		s.notifier.Publish(Event{Kind: EventSignedOut, UserID: userID, At: s.now()})
	}
	return nil
}

func (s *Service) publish(kind EventKind, sess *Session) {
	s.notifier.Publish(Event{Kind: kind, UserID: sess.User.ID, SessionID: sess.ID, At: s.now()})
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
