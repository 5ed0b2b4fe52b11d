package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSessionRevoked  = "session.revoked"
	EventTypeNoticePublished = "notice.published"
)

type SessionRef struct {
	Username string `json:"username"`
	JTI      string `json:"jti"`
}

// SessionRevokedEvent is emitted after revocations have been committed.
type SessionRevokedEvent struct {
	BaseEvent
	Sessions []SessionRef `json:"sessions"`
	Reason   string       `json:"reason"`
	Actor    string       `json:"actor"`
}

func NewSessionRevokedEvent(sessions []SessionRef, actor, reason string) *SessionRevokedEvent {
	return &SessionRevokedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSessionRevoked,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"sessions": len(sessions),
				"reason":   reason,
				"actor":    actor,
			},
		},
		Sessions: sessions,
		Reason:   reason,
		Actor:    actor,
	}
}

type NoticePublishedEvent struct {
	BaseEvent
	Usernames []string `json:"usernames"`
	Count     int      `json:"count"`
}

func NewNoticePublishedEvent(usernames []string, count int) *NoticePublishedEvent {
	return &NoticePublishedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeNoticePublished,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"usernames": usernames,
				"count":     count,
			},
		},
		Usernames: usernames,
		Count:     count,
	}
}
