package session

import "time"

type ListQuery struct {
	Page     int
	PageSize int
	Username string
	IP       string
	Status   *int
}

type SessionView struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"userId"`
	Username     string     `json:"username"`
	IP           string     `json:"ip"`
	Browser      string     `json:"browser"`
	OS           string     `json:"os"`
	UserAgent    string     `json:"userAgent"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Status       int        `json:"status"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	RevokeReason string     `json:"revokeReason,omitempty"`
	RevokedBy    string     `json:"revokedBy,omitempty"`
	IsCurrent    bool       `json:"isCurrent"`
}

type ListResult struct {
	Items    []SessionView `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

type BatchKickRequest struct {
	IDs    []int64 `json:"ids"`
	Reason string  `json:"reason"`
}

type KickResponse struct {
	Revoked int `json:"revoked"`
}
