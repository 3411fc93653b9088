package dto

import (
	"time"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// CreateMaintenanceRequest is the validated intake payload handed to the engine.
type CreateMaintenanceRequest struct {
	RequesterName string `json:"requester_name" validate:"omitempty,max=255"`
	Role          string `json:"role" validate:"required,oneof=instructor staff"`
	Section       string `json:"section" validate:"omitempty,max=50"`
	StudentID     string `json:"student_id" validate:"omitempty,max=50"`
	Description   string `json:"description" validate:"required"`
	IssuePhoto    string `json:"issue_photo"`
	BuildingID    *int64 `json:"building"`
	FloorID       *int64 `json:"floor"`
	RoomID        *int64 `json:"room"`
}

// ReviewRequest carries an administrator decision.
// AssignedTo: nil leaves the assignee alone, "" unassigns, otherwise a user id.
type ReviewRequest struct {
	Status          string  `json:"status"`
	RejectionReason string  `json:"rejection_reason"`
	AssignedTo      *string `json:"assigned_to"`
}

// CompleteRequest closes out a request. A non-empty AssignedTo backfills the assignee.
type CompleteRequest struct {
	CompletionNotes *string `json:"completion_notes"`
	CompletionPhoto *string `json:"completion_photo"`
	AssignedTo      *string `json:"assigned_to"`
}

// StatusUpdate is a free-form staff progress update; only present fields apply.
type StatusUpdate struct {
	Status          *string `json:"status"`
	RejectionReason *string `json:"rejection_reason"`
	CompletionNotes *string `json:"completion_notes"`
	CompletionPhoto *string `json:"completion_photo"`
	AssignedTo      *string `json:"assigned_to"`
}

// ScheduleEvent is raised by the scheduling collaborator whenever a schedule
// record for a request is created or updated.
type ScheduleEvent struct {
	RequestID         int64           `validate:"required,gt=0"`
	ScheduleDate      time.Time       `validate:"required"`
	EstimatedDuration string          `validate:"omitempty,max=100"`
	AssignedStaff     models.StaffRef `validate:"-"`
	Created           bool
}
