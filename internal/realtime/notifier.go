package realtime

import (
	"log/slog"
	"sync"

	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
)

type connSet map[Sender]struct{}

// Notifier tracks live connections per user and per session. Sends run on a
// snapshot taken under the lock; delivery failures are logged and dropped.
type Notifier struct {
	mu     sync.Mutex
	conns  map[string]map[string]connSet
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		conns:  make(map[string]map[string]connSet),
		logger: logger,
	}
}

func (n *Notifier) Connect(username, jti string, c Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sessions, ok := n.conns[username]
	if !ok {
		sessions = make(map[string]connSet)
		n.conns[username] = sessions
	}
	set, ok := sessions[jti]
	if !ok {
		set = make(connSet)
		sessions[jti] = set
	}
	if _, exists := set[c]; !exists {
		set[c] = struct{}{}
		metrics.RealtimeConnections.Inc()
	}
}

func (n *Notifier) Disconnect(username, jti string, c Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sessions, ok := n.conns[username]
	if !ok {
		return
	}
	set, ok := sessions[jti]
	if !ok {
		return
	}
	if _, exists := set[c]; !exists {
		return
	}
	delete(set, c)
	metrics.RealtimeConnections.Dec()
	if len(set) == 0 {
		delete(sessions, jti)
	}
	if len(sessions) == 0 {
		delete(n.conns, username)
	}
}

func (n *Notifier) ConnectionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, sessions := range n.conns {
		for _, set := range sessions {
			total += len(set)
		}
	}
	return total
}

// SendToUser writes ev to every connection of username and returns the number of successful writes.
func (n *Notifier) SendToUser(username string, ev Event) int {
	return n.deliver(n.snapshotUsers([]string{username}), ev)
}

func (n *Notifier) SendToSession(username, jti string, ev Event) int {
	return n.deliver(n.snapshotSessions([]events.SessionRef{{Username: username, JTI: jti}}), ev)
}

func (n *Notifier) BroadcastUsers(usernames []string, ev Event) int {
	return n.deliver(n.snapshotUsers(usernames), ev)
}

func (n *Notifier) BroadcastSessions(refs []events.SessionRef, ev Event) int {
	return n.deliver(n.snapshotSessions(refs), ev)
}

func (n *Notifier) snapshotUsers(usernames []string) []Sender {
	n.mu.Lock()
	defer n.mu.Unlock()

	seen := make(connSet)
	var out []Sender
	for _, username := range usernames {
		for _, set := range n.conns[username] {
			for c := range set {
				if _, dup := seen[c]; !dup {
					seen[c] = struct{}{}
					out = append(out, c)
				}
			}
		}
	}
	return out
}

func (n *Notifier) snapshotSessions(refs []events.SessionRef) []Sender {
	n.mu.Lock()
	defer n.mu.Unlock()

	seen := make(connSet)
	var out []Sender
	for _, ref := range refs {
		for c := range n.conns[ref.Username][ref.JTI] {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}

func (n *Notifier) deliver(targets []Sender, ev Event) int {
	delivered := 0
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			metrics.RealtimeSendFailures.Inc()
			n.logger.Debug("realtime send failed", "event", ev.Event, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
