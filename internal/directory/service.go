// Package directory holds the user directory: login with legacy password
// migration, listing, creation with sequential ids, role statistics, and the
// startup routine that guarantees an administrator exists.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"user-directory/internal/cache"
	"user-directory/internal/credentials"
	"user-directory/internal/database"
	"user-directory/internal/logging"
	"user-directory/internal/models"
)

// FirstUserID is assigned when the directory is empty.
const FirstUserID int64 = 1000

type UserStore interface {
	List(ctx context.Context) ([]models.User, error)
	FindByUserID(ctx context.Context, userID int64) (*models.User, error)
	MaxUserID(ctx context.Context) (int64, bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID int64, hash string) error
	CountByRole(ctx context.Context, role models.UserRole) (int64, error)
}

type PasswordCodec interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, stored string) (matched, legacy bool, err error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

type StatsCache interface {
	Get(ctx context.Context) (cache.Stats, error)
	Set(ctx context.Context, s cache.Stats) error
	Invalidate(ctx context.Context) error
}

// Principal is what a successful login reveals about the user.
type Principal struct {
	Name   string          `json:"name"`
	Role   models.UserRole `json:"role"`
	UserID int64           `json:"userId"`
}

type Stats = cache.Stats

type Service struct {
	users UserStore
	codec PasswordCodec
	log   logging.Logger

	audit AuditRecorder
	stats StatsCache

	// bumped on every invalidation; Stats skips its cache write if it moved
	statsGen atomic.Uint64
}

type Option func(*Service)

// WithAudit records creations and password upgrades.
func WithAudit(a AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithStatsCache serves Stats from c and drops it after each create.
func WithStatsCache(c StatsCache) Option {
	return func(s *Service) { s.stats = c }
}

func NewService(users UserStore, codec PasswordCodec, log logging.Logger, opts ...Option) *Service {
	s := &Service{users: users, codec: codec, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every user, newest first. Password is never serialized.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		s.log.Error(ctx, "list users failed", "error", err)
		return nil, ErrInternal
	}
	return users, nil
}

// Authenticate checks a user id and password. A plaintext password that
// matches is rehashed before returning; if that write fails the login still
// succeeds.
func (s *Service) Authenticate(ctx context.Context, rawUserID, password string) (*Principal, error) {
	rawUserID = strings.TrimSpace(rawUserID)
	if rawUserID == "" || password == "" {
		return nil, invalid("user id and password are required")
	}
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil {
		return nil, invalid("user id must be an integer")
	}

	user, err := s.users.FindByUserID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.log.Error(ctx, "login lookup failed", "user_id", userID, "error", err)
		return nil, ErrInternal
	}

	matched, legacy, err := s.codec.Verify(password, user.Password)
	if err != nil {
		s.log.Error(ctx, "password verification failed", "user_id", userID, "error", err)
		return nil, ErrInternal
	}
	if !matched {
		return nil, ErrInvalidCredentials
	}
	if legacy {
		s.upgradePassword(ctx, user.UserID, password)
	}

	return &Principal{Name: user.Name, Role: user.Role, UserID: user.UserID}, nil
}

func (s *Service) upgradePassword(ctx context.Context, userID int64, password string) {
	hash, err := s.codec.Hash(password)
	if err != nil {
		s.log.Warn(ctx, "legacy password rehash failed", "user_id", userID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		s.log.Warn(ctx, "legacy password upgrade not saved", "user_id", userID, "error", err)
		return
	}
	s.log.Info(ctx, "legacy password upgraded", "user_id", userID)
	s.record(ctx, userID, models.AuditPasswordUpgraded, "")
}

type CreateUserInput struct {
	Name     string
	Password string
	Role     string
}

// Create stores a new user under max(userId)+1, or FirstUserID when empty.
// The read and the insert are not atomic: a concurrent create that picks the
// same id fails on the unique index and is reported as ErrUserIDConflict.
// The returned record carries the password hash; do not send it onward.
func (s *Service) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Password == "" || strings.TrimSpace(in.Role) == "" {
		return nil, invalid("name, password and role are required")
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, invalid("role must be one of administrator, teacher, student")
	}
	if len(in.Password) > credentials.MaxPasswordBytes {
		return nil, invalid(fmt.Sprintf("password must be at most %d bytes", credentials.MaxPasswordBytes))
	}

	max, ok, err := s.users.MaxUserID(ctx)
	if err != nil {
		s.log.Error(ctx, "read max user id failed", "error", err)
		return nil, ErrInternal
	}
	userID := FirstUserID
	if ok && max > 0 {
		userID = max + 1
	}

	hash, err := s.codec.Hash(in.Password)
	if err != nil {
		s.log.Error(ctx, "hash password failed", "error", err)
		return nil, ErrInternal
	}

	user := &models.User{
		UserID:   userID,
		Name:     name,
		Password: hash,
		Role:     role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateUserID) {
			s.log.Warn(ctx, "user id conflict on create", "user_id", userID)
			return nil, ErrUserIDConflict
		}
		s.log.Error(ctx, "create user failed", "user_id", userID, "error", err)
		return nil, ErrInternal
	}

	s.log.Info(ctx, "user created", "user_id", userID, "role", role)
	s.record(ctx, userID, models.AuditUserCreated, fmt.Sprintf("%s (%s)", name, role))
	s.invalidateStats(ctx)
	return user, nil
}

// Stats counts students and teachers. On a cache miss the counts are written
// back unless a create in this process invalidated the cache meanwhile.
// Creates served by other processes can still leave a stale entry until the
// TTL expires.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	gen := s.statsGen.Load()
	if s.stats != nil {
		cached, err := s.stats.Get(ctx)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn(ctx, "stats cache read failed", "error", err)
		}
	}

	students, err := s.users.CountByRole(ctx, models.RoleStudent)
	if err != nil {
		s.log.Error(ctx, "count students failed", "error", err)
		return Stats{}, ErrInternal
	}
	teachers, err := s.users.CountByRole(ctx, models.RoleTeacher)
	if err != nil {
		s.log.Error(ctx, "count teachers failed", "error", err)
		return Stats{}, ErrInternal
	}

	out := Stats{StudentCount: students, TeacherCount: teachers}
	if s.stats != nil && s.statsGen.Load() == gen {
		if err := s.stats.Set(ctx, out); err != nil {
			s.log.Warn(ctx, "stats cache write failed", "error", err)
		}
	}
	return out, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	s.statsGen.Add(1)
	if err := s.stats.Invalidate(ctx); err != nil {
		s.log.Warn(ctx, "stats cache invalidation failed", "error", err)
	}
}

func (s *Service) record(ctx context.Context, userID int64, action, details string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{UserID: userID, Action: action, Details: details}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn(ctx, "audit record failed", "action", action, "user_id", userID, "error", err)
	}
}
