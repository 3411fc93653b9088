package models

import (
	"strings"
	"time"
	"unicode"
)

// RequestStatus captures lifecycle states of a maintenance request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusRejected   RequestStatus = "rejected"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"

	// RequestStatusForApproval only appears in rows written by the legacy system.
	RequestStatusForApproval RequestStatus = "for_approval"
)

// RequestStatuses lists the statuses accepted by lifecycle operations, in display order.
var RequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApproved,
	RequestStatusRejected,
	RequestStatusInProgress,
	RequestStatusCompleted,
}

var statusLabels = map[RequestStatus]string{
	RequestStatusPending:     "Pending",
	RequestStatusForApproval: "For Approval",
	RequestStatusApproved:    "Approved",
	RequestStatusRejected:    "Rejected",
	RequestStatusInProgress:  "In Progress",
	RequestStatusCompleted:   "Completed",
}

// Valid reports whether s is one of RequestStatuses.
func (s RequestStatus) Valid() bool {
	for _, candidate := range RequestStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal reports whether no further claim is accepted in this state.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCompleted
}

// Label returns the human readable status. Unknown codes are title-cased.
func (s RequestStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return titleCase(string(s))
}

// titleCase upper-cases the first letter of every run of letters and lower-cases the rest.
func titleCase(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	prevLetter := false
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

// RequesterRole describes who filed the request.
type RequesterRole string

const (
	RequesterRoleInstructor RequesterRole = "instructor"
	RequesterRoleStaff      RequesterRole = "staff"
)

// MaintenanceRequest is the lifecycle record of a facility issue.
type MaintenanceRequest struct {
	ID              int64         `db:"id" json:"id"`
	Status          RequestStatus `db:"status" json:"status"`
	RejectionReason *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RequesterName   *string       `db:"requester_name" json:"requester_name,omitempty"`
	Role            RequesterRole `db:"role" json:"role"`
	Section         *string       `db:"section" json:"section,omitempty"`
	StudentID       *string       `db:"student_id" json:"student_id,omitempty"`
	Description     string        `db:"description" json:"description"`
	IssuePhoto      *string       `db:"issue_photo" json:"issue_photo,omitempty"`
	BuildingID      *int64        `db:"building_id" json:"building,omitempty"`
	FloorID         *int64        `db:"floor_id" json:"floor,omitempty"`
	RoomID          *int64        `db:"room_id" json:"room,omitempty"`
	AssignedTo      *int64        `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedBy       *int64        `db:"created_by" json:"created_by,omitempty"`
	CompletionNotes *string       `db:"completion_notes" json:"completion_notes,omitempty"`
	CompletionPhoto *string       `db:"completion_photo" json:"completion_photo,omitempty"`
	Version         int64         `db:"version" json:"-"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so snapshots never share pointer fields.
func (r MaintenanceRequest) Clone() MaintenanceRequest {
	out := r
	out.RejectionReason = cloneString(r.RejectionReason)
	out.RequesterName = cloneString(r.RequesterName)
	out.Section = cloneString(r.Section)
	out.StudentID = cloneString(r.StudentID)
	out.IssuePhoto = cloneString(r.IssuePhoto)
	out.BuildingID = cloneInt64(r.BuildingID)
	out.FloorID = cloneInt64(r.FloorID)
	out.RoomID = cloneInt64(r.RoomID)
	out.AssignedTo = cloneInt64(r.AssignedTo)
	out.CreatedBy = cloneInt64(r.CreatedBy)
	out.CompletionNotes = cloneString(r.CompletionNotes)
	out.CompletionPhoto = cloneString(r.CompletionPhoto)
	return out
}

// HasCompletionEvidence reports whether notes or a photo were recorded.
func (r MaintenanceRequest) HasCompletionEvidence() bool {
	return nonEmpty(r.CompletionNotes) || nonEmpty(r.CompletionPhoto)
}

// RequestChange carries the committed before and after snapshots of one write.
type RequestChange struct {
	Before MaintenanceRequest
	After  MaintenanceRequest
}

// StatusChanged reports whether the write moved the request to another status.
func (c RequestChange) StatusChanged() bool {
	return c.Before.Status != c.After.Status
}

// Accepted reports whether the write assigned a previously unassigned request.
func (c RequestChange) Accepted() bool {
	return c.Before.AssignedTo == nil && c.After.AssignedTo != nil
}

// MaintenanceRequestView is the read model returned to collaborators.
type MaintenanceRequestView struct {
	MaintenanceRequest
	StatusDisplay string `json:"status_display"`
}

// NewMaintenanceRequestView attaches the derived status label.
func NewMaintenanceRequestView(req MaintenanceRequest) *MaintenanceRequestView {
	return &MaintenanceRequestView{MaintenanceRequest: req, StatusDisplay: req.Status.Label()}
}

// MaintenanceRequestFilter constrains listing queries.
type MaintenanceRequestFilter struct {
	BuildingID *int64
	FloorID    *int64
	RoomID     *int64
	Status     []RequestStatus
	CreatedBy  *int64
	AssignedTo *int64
	Limit      int
	Offset     int
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func nonEmpty(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
