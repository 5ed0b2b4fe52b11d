package session

import "time"

const (
	StatusRevoked = 0
	StatusActive  = 1
)

type UserSession struct {
	ID           int64      `gorm:"primaryKey"`
	UserID       int64      `gorm:"column:user_id;not null;index:idx_session_user_status,priority:1"`
	Username     string     `gorm:"column:username;size:50;not null;index:idx_session_username_status,priority:1"`
	JTI          string     `gorm:"column:jti;size:64;uniqueIndex;not null"`
	IP           string     `gorm:"column:ip;size:64"`
	UserAgent    string     `gorm:"column:user_agent;size:512"`
	Browser      string     `gorm:"column:browser;size:64"`
	OS           string     `gorm:"column:os;size:64"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	LastSeenAt   *time.Time `gorm:"column:last_seen_at"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	Status       int        `gorm:"column:status;not null;index:idx_session_username_status,priority:2;index:idx_session_user_status,priority:2"`
	RevokedAt    *time.Time `gorm:"column:revoked_at"`
	RevokeReason string     `gorm:"column:revoke_reason;size:255"`
	RevokedBy    string     `gorm:"column:revoked_by;size:50"`
}

func (UserSession) TableName() string { return "sys_user_session" }
