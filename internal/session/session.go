package session

import (
	"context"
	"strings"
	"time"

	"github.com/frahmantamala/rbac-admin/internal"
	sessionDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/pkg/idset"
	"github.com/frahmantamala/rbac-admin/pkg/strutil"
)

// Mode is the login policy: one active session per user, or any number.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// LoginModeSettingKey is the sys_config key holding the persisted login mode.
const LoginModeSettingKey = "auth.login.mode"

const (
	ActorSystem = "system"

	ReasonEvicted   = "evicted by new login"
	ReasonLoggedOut = "user logged out"
	ReasonKicked    = "kicked by administrator"
	ReasonNoSession = "no such session"
	ReasonRevoked   = "session revoked"
	ReasonExpired   = "session expired"

	maxReasonLength    = 255
	maxUserAgentLength = 512
	maxBrowserLength   = 64
)

func ParseMode(v string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(v))); m {
	case ModeSingle, ModeMulti:
		return m, true
	}
	return "", false
}

// Owner identifies the user a session is created for.
type Owner struct {
	ID       int64
	Username string
}

type ClientMeta struct {
	IP        string
	UserAgent string
}

type Revocation struct {
	Actor  string
	Reason string
	At     time.Time
}

// ListFilter is the repository-level query of the session list.
// A nil UserIDs means every user; an empty set matches nothing.
type ListFilter struct {
	Username string
	IP       string
	Status   *int
	UserIDs  idset.Set
	Now      time.Time
	Offset   int
	Limit    int
}

type RepositoryAPI interface {
	Create(ctx context.Context, s *sessionDatamodel.UserSession) error
	// ReplaceActive revokes every other active session of the owner and inserts s
	// in one transaction. It returns the sessions it revoked.
	ReplaceActive(ctx context.Context, s *sessionDatamodel.UserSession, rev Revocation) ([]sessionDatamodel.UserSession, error)
	GetByJTI(ctx context.Context, username, jti string) (*sessionDatamodel.UserSession, error)
	GetByID(ctx context.Context, id int64) (*sessionDatamodel.UserSession, error)
	FindByIDs(ctx context.Context, ids []int64) ([]sessionDatamodel.UserSession, error)
	// Revoke transitions the still-active sessions among ids and returns exactly those.
	Revoke(ctx context.Context, ids []int64, rev Revocation) ([]sessionDatamodel.UserSession, error)
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
	List(ctx context.Context, f ListFilter) ([]sessionDatamodel.UserSession, int64, error)
}

// SettingStore reads runtime settings. ok is false when the key is missing or disabled.
type SettingStore interface {
	GetEnabledValue(ctx context.Context, key string) (value string, ok bool, err error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type ScopeResolver interface {
	AllowedUserIDs(ctx context.Context, p *internal.Principal) (idset.Set, error)
}

// EffectiveStatus folds expiry into the stored status.
func EffectiveStatus(s *sessionDatamodel.UserSession, now time.Time) int {
	if s.Status == sessionDatamodel.StatusActive && s.ExpiresAt.After(now) {
		return sessionDatamodel.StatusActive
	}
	return sessionDatamodel.StatusRevoked
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	return strutil.TruncateRunes(reason, maxReasonLength)
}
