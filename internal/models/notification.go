package models

import "time"

// EventKind enumerates lifecycle facts that trigger notifications.
type EventKind string

const (
	EventRequestCreated EventKind = "request_created"
	EventStaffAccepted  EventKind = "staff_accepted"
	EventStatusChanged  EventKind = "status_changed"
	EventScheduled      EventKind = "scheduled"
)

// LifecycleEvent is emitted after a request write commits, or when a schedule is saved.
type LifecycleEvent struct {
	Kind    EventKind
	Request MaintenanceRequest

	// Staff is the accepting staff member for StaffAccepted and the
	// assigned staff for Scheduled. Nil when unknown.
	Staff *User

	OldStatus   RequestStatus
	NewStatus   RequestStatus
	OldAssignee *int64
	NewAssignee *int64

	ScheduleDate      time.Time
	EstimatedDuration string

	OccurredAt time.Time
}

// EventsForChange derives the notification-worthy facts of a non-creation write.
// StaffAccepted precedes StatusChanged when both apply.
func EventsForChange(change RequestChange, at time.Time) []LifecycleEvent {
	events := make([]LifecycleEvent, 0, 2)
	if change.Accepted() {
		events = append(events, LifecycleEvent{
			Kind:        EventStaffAccepted,
			Request:     change.After,
			OldAssignee: change.Before.AssignedTo,
			NewAssignee: change.After.AssignedTo,
			OldStatus:   change.Before.Status,
			NewStatus:   change.After.Status,
			OccurredAt:  at,
		})
	}
	if change.StatusChanged() {
		events = append(events, LifecycleEvent{
			Kind:        EventStatusChanged,
			Request:     change.After,
			OldStatus:   change.Before.Status,
			NewStatus:   change.After.Status,
			OldAssignee: change.Before.AssignedTo,
			NewAssignee: change.After.AssignedTo,
			OccurredAt:  at,
		})
	}
	return events
}

// Notification is an immutable message addressed to one user.
type Notification struct {
	ID          string    `db:"id" json:"id"`
	RecipientID int64     `db:"user_id" json:"user"`
	Message     string    `db:"message" json:"message"`
	RequestID   *int64    `db:"maintenance_request_id" json:"maintenance_request,omitempty"`
	Event       EventKind `db:"event" json:"event"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
