package notify

import "log"

// Event is a notification about something that happened in the core:
// a request transition, a new support message, a withdrawal request.
// Delivery is fire-and-forget; a failed notification never rolls back the
// state change that triggered it.
type Event struct {
	Kind      string // e.g. "request.validated", "withdrawal.requested"
	UserID    string
	RequestID string
	Text      string
}

// Notifier delivers events to whoever operates the platform.
type Notifier interface {
	Notify(e Event)
}

// LogNotifier writes events to the process log. Used when no Telegram
// channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(e Event) {
	log.Printf("Notification [%s] user=%s request=%s: %s", e.Kind, e.UserID, e.RequestID, e.Text)
}
