package core

import "context"

// NotificationKind names the lifecycle event of a granted activity.
type NotificationKind string

const (
	NotifyCreated NotificationKind = "created"
	NotifyUpdated NotificationKind = "updated"
	NotifyExpired NotificationKind = "expired"
)

// Notifier tells the payments office about granted activities. Notify is
// called after the transaction that caused the event has committed.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, a Activity) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, NotificationKind, Activity) error { return nil }

type notification struct {
	kind     NotificationKind
	activity Activity
}

// outbox collects notifications until the transaction commits.
type outbox struct {
	pending []notification
}

func (o *outbox) add(kind NotificationKind, a Activity) {
	o.pending = append(o.pending, notification{kind: kind, activity: a})
}
