package directory

import (
	"context"

	"user-directory/internal/models"
)

// DefaultAdminUserID is the well-known id of the bootstrapped administrator.
const DefaultAdminUserID int64 = 999

type BootstrapResult int

const (
	BootstrapFailed BootstrapResult = iota
	BootstrapPresent
	BootstrapCreated
)

func (r BootstrapResult) String() string {
	switch r {
	case BootstrapPresent:
		return "present"
	case BootstrapCreated:
		return "created"
	default:
		return "failed"
	}
}

type AdminAccount struct {
	Name     string
	Password string
}

// EnsureDefaultAdmin creates the administrator 999 with a known password when
// no administrator exists. The credential is logged once so an operator can
// sign in and rotate it. Failures are logged and never returned: the server
// keeps serving without an admin.
//
// Two processes bootstrapping the same empty store at once can both see no
// administrator; the second insert then hits the user_id index and is logged.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, acct AdminAccount) BootstrapResult {
	count, err := s.users.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.log.Error(ctx, "bootstrap: check administrator failed", "error", err)
		return BootstrapFailed
	}
	if count > 0 {
		s.log.Debug(ctx, "bootstrap: administrator present")
		return BootstrapPresent
	}

	s.log.Info(ctx, "bootstrap: no administrator found, creating default")

	hash, err := s.codec.Hash(acct.Password)
	if err != nil {
		s.log.Error(ctx, "bootstrap: hash default password failed", "error", err)
		return BootstrapFailed
	}

	admin := &models.User{
		UserID:   DefaultAdminUserID,
		Name:     acct.Name,
		Password: hash,
		Role:     models.RoleAdmin,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		s.log.Error(ctx, "bootstrap: create default administrator failed", "error", err)
		return BootstrapFailed
	}

	s.log.Warn(ctx, "bootstrap: default administrator created, change this password after first login",
		"user_id", DefaultAdminUserID, "password", acct.Password)
	s.record(ctx, DefaultAdminUserID, models.AuditAdminBootstrap, acct.Name)
	s.invalidateStats(ctx)
	return BootstrapCreated
}
