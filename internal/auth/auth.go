package auth

import (
	"context"
	"time"

	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	sessionSvc "github.com/frahmantamala/rbac-admin/internal/session"
)

// AllCodes is reported as the only access code of a superuser.
const AllCodes = "*"

// Permission codes guarding the session administration surface.
const (
	PermSessionList = "System:Session:List"
	PermSessionKick = "System:Session:Kick"
	PermNoticeSend  = "System:Notice:Send"
)

type RepositoryAPI interface {
	GetUserByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	GetEnabledRoleCodes(ctx context.Context, userID int64) ([]string, error)
	GetAccessCodes(ctx context.Context, roleCodes []string) ([]string, error)
}

// SessionManager is the part of the session service used by login, logout and
// request authentication.
type SessionManager interface {
	Create(ctx context.Context, owner sessionSvc.Owner, jti string, expiresAt time.Time, meta sessionSvc.ClientMeta) (*session.UserSession, error)
	Validate(ctx context.Context, username, jti string) error
	RevokeByJTI(ctx context.Context, username, jti, actor, reason string) (bool, error)
}

type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
