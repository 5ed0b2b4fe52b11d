package realtime

import (
	"context"
	"fmt"

	"github.com/frahmantamala/rbac-admin/internal/core/events"
)

// Subscribe bridges domain events onto client connections.
func Subscribe(bus *events.EventBus, n *Notifier) {
	bus.Subscribe(events.EventTypeSessionRevoked, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(*events.SessionRevokedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e, e.EventType())
		}
		n.BroadcastSessions(ev.Sessions, KickoutEvent(ev.Reason))
		return nil
	})

	bus.Subscribe(events.EventTypeNoticePublished, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(*events.NoticePublishedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e, e.EventType())
		}
		n.BroadcastUsers(ev.Usernames, NoticeEvent(ev.Count))
		return nil
	})
}
