package realtime

import "time"

const (
	EventKickout   = "auth:kickout"
	EventNoticeNew = "notice:new"
)

// Event is the envelope written to clients.
type Event struct {
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(name string, data interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{Event: name, Timestamp: time.Now().Unix(), Data: data}
}

func KickoutEvent(reason string) Event {
	return NewEvent(EventKickout, map[string]interface{}{"reason": reason})
}

func NoticeEvent(count int) Event {
	return NewEvent(EventNoticeNew, map[string]interface{}{"count": count})
}

// Sender is one client connection. Implementations must be safe for concurrent
// use and comparable, since they are used as registry keys.
type Sender interface {
	Send(ev Event) error
}
