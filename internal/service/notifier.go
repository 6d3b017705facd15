package service

// Event types pushed to connected admin clients.
const (
	EventPermissionsChanged = "permissions.changed"
	EventSessionRevoked     = "session.revoked"
	EventUserChanged        = "user.changed"
)

// Notifier pushes realtime events. The websocket hub implements it.
type Notifier interface {
	Notify(eventType string, payload any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, any) {}
