package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	sessionDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) session.RepositoryAPI {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *sessionDatamodel.UserSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) ReplaceActive(ctx context.Context, s *sessionDatamodel.UserSession, rev session.Revocation) ([]sessionDatamodel.UserSession, error) {
	var evicted []sessionDatamodel.UserSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Concurrent logins of one user queue on the user row, so the second sees the first's session.
		var owner userDatamodel.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", s.UserID).
			Find(&owner).Error; err != nil {
			return err
		}

		var active []sessionDatamodel.UserSession
		if err := tx.Where("user_id = ? AND status = ? AND jti <> ?", s.UserID, sessionDatamodel.StatusActive, s.JTI).
			Find(&active).Error; err != nil {
			return err
		}
		var err error
		evicted, err = revokeRows(tx, active, rev)
		if err != nil {
			return err
		}
		return tx.Create(s).Error
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

func (r *SessionRepository) GetByJTI(ctx context.Context, username, jti string) (*sessionDatamodel.UserSession, error) {
	var s sessionDatamodel.UserSession
	err := r.db.WithContext(ctx).Where("jti = ? AND username = ?", jti, username).First(&s).Error
	return found(&s, err)
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*sessionDatamodel.UserSession, error) {
	var s sessionDatamodel.UserSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	return found(&s, err)
}

func (r *SessionRepository) FindByIDs(ctx context.Context, ids []int64) ([]sessionDatamodel.UserSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []sessionDatamodel.UserSession
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *SessionRepository) Revoke(ctx context.Context, ids []int64, rev session.Revocation) ([]sessionDatamodel.UserSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var revoked []sessionDatamodel.UserSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []sessionDatamodel.UserSession
		if err := tx.Where("id IN ? AND status = ?", ids, sessionDatamodel.StatusActive).
			Order("id ASC").
			Find(&candidates).Error; err != nil {
			return err
		}
		var err error
		revoked, err = revokeRows(tx, candidates, rev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

// revokeRows flips each row with a conditional update so that a concurrent
// revocation is never counted twice. Only rows that this call transitioned are returned.
func revokeRows(tx *gorm.DB, rows []sessionDatamodel.UserSession, rev session.Revocation) ([]sessionDatamodel.UserSession, error) {
	at := rev.At
	if at.IsZero() {
		at = time.Now()
	}
	out := make([]sessionDatamodel.UserSession, 0, len(rows))
	for _, row := range rows {
		res := tx.Model(&sessionDatamodel.UserSession{}).
			Where("id = ? AND status = ?", row.ID, sessionDatamodel.StatusActive).
			Updates(map[string]interface{}{
				"status":        sessionDatamodel.StatusRevoked,
				"revoked_at":    at,
				"revoke_reason": rev.Reason,
				"revoked_by":    rev.Actor,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			row.Status = sessionDatamodel.StatusRevoked
			row.RevokedAt = &at
			row.RevokeReason = rev.Reason
			row.RevokedBy = rev.Actor
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *SessionRepository) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&sessionDatamodel.UserSession{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
}

func (r *SessionRepository) List(ctx context.Context, f session.ListFilter) ([]sessionDatamodel.UserSession, int64, error) {
	if f.UserIDs != nil && f.UserIDs.Len() == 0 {
		return []sessionDatamodel.UserSession{}, 0, nil
	}

	query := r.db.WithContext(ctx).Model(&sessionDatamodel.UserSession{})
	if f.Username != "" {
		query = query.Where("LOWER(username) LIKE ? ESCAPE '\\'", likePattern(f.Username))
	}
	if f.IP != "" {
		query = query.Where("LOWER(ip) LIKE ? ESCAPE '\\'", likePattern(f.IP))
	}
	if f.Status != nil {
		if *f.Status == sessionDatamodel.StatusActive {
			query = query.Where("status = ? AND expires_at > ?", sessionDatamodel.StatusActive, f.Now)
		} else {
			query = query.Where("(status = ? OR expires_at <= ?)", sessionDatamodel.StatusRevoked, f.Now)
		}
	}
	if f.UserIDs != nil {
		query = query.Where("user_id IN ?", f.UserIDs.Slice())
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []sessionDatamodel.UserSession
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&rows).Error
	return rows, total, err
}

func likePattern(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(v)
	return "%" + v + "%"
}

func found(s *sessionDatamodel.UserSession, err error) (*sessionDatamodel.UserSession, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}
