package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/dto"
	"github.com/noah-isme/sma-maintenance-api/internal/models"
	"github.com/noah-isme/sma-maintenance-api/internal/repository"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

// Operation names used in logs and metrics.
const (
	opCreate          = "create"
	opClaim           = "claim"
	opApproveOrReject = "approve_or_reject"
	opComplete        = "complete"
	opUpdateStatus    = "update_status"
)

type requestStore interface {
	Create(ctx context.Context, req *models.MaintenanceRequest) error
	Get(ctx context.Context, id int64) (*models.MaintenanceRequest, error)
	List(ctx context.Context, filter models.MaintenanceRequestFilter) ([]models.MaintenanceRequest, error)
	ConditionalUpdate(ctx context.Context, id int64, guard repository.RequestGuard, mutate repository.RequestMutator) (*models.RequestChange, error)
}

type actorResolver interface {
	Resolve(ctx context.Context, id int64) (*models.User, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) ([]models.Notification, error)
}

// CompletionPolicy governs the complete operation.
type CompletionPolicy struct {
	// AllowFromAnyStatus lets any status move to completed. When false only
	// approved and in-progress requests can be completed.
	AllowFromAnyStatus bool
	// RequireEvidence demands completion notes or a photo on the completed record.
	RequireEvidence bool
}

// DefaultCompletionPolicy matches the permissive behaviour staff rely on today.
func DefaultCompletionPolicy() CompletionPolicy {
	return CompletionPolicy{AllowFromAnyStatus: true}
}

// LifecycleService owns the maintenance request state machine.
type LifecycleService struct {
	store     requestStore
	directory actorResolver
	publisher eventPublisher
	validator *validator.Validate
	metrics   *MetricsService
	policy    CompletionPolicy
	logger    *zap.Logger
}

// LifecycleOption configures the service.
type LifecycleOption func(*LifecycleService)

// WithCompletionPolicy overrides the completion policy.
func WithCompletionPolicy(policy CompletionPolicy) LifecycleOption {
	return func(s *LifecycleService) {
		s.policy = policy
	}
}

// WithLifecycleMetrics attaches Prometheus instrumentation.
func WithLifecycleMetrics(metrics *MetricsService) LifecycleOption {
	return func(s *LifecycleService) {
		s.metrics = metrics
	}
}

// WithLifecycleValidator shares a validator instance.
func WithLifecycleValidator(validate *validator.Validate) LifecycleOption {
	return func(s *LifecycleService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// NewLifecycleService constructs the engine. publisher may be nil to disable notifications.
func NewLifecycleService(store requestStore, directory actorResolver, publisher eventPublisher, logger *zap.Logger, opts ...LifecycleOption) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LifecycleService{
		store:     store,
		directory: directory,
		publisher: publisher,
		validator: validator.New(),
		policy:    DefaultCompletionPolicy(),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create records a new pending request and notifies administrators.
func (s *LifecycleService) Create(ctx context.Context, req dto.CreateMaintenanceRequest, creatorID *int64) (view *models.MaintenanceRequestView, err error) {
	defer func() { s.record(opCreate, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if creatorID != nil {
		if _, err := s.directory.Resolve(ctx, *creatorID); err != nil {
			return nil, err
		}
	}

	request := &models.MaintenanceRequest{
		RequesterName: optionalString(req.RequesterName),
		Role:          models.RequesterRole(req.Role),
		Section:       optionalString(req.Section),
		StudentID:     optionalString(req.StudentID),
		Description:   strings.TrimSpace(req.Description),
		IssuePhoto:    optionalString(req.IssuePhoto),
		BuildingID:    req.BuildingID,
		FloorID:       req.FloorID,
		RoomID:        req.RoomID,
		CreatedBy:     creatorID,
	}
	if request.Description == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description is required")
	}
	if err := s.store.Create(ctx, request); err != nil {
		return nil, appErrors.Internal(err, "failed to create maintenance request")
	}

	s.logger.Info("maintenance request created", zap.Int64("request_id", request.ID), zap.String("role", string(request.Role)))
	s.publish(ctx, opCreate, models.LifecycleEvent{
		Kind:       models.EventRequestCreated,
		Request:    request.Clone(),
		NewStatus:  request.Status,
		OccurredAt: request.CreatedAt,
	})
	return models.NewMaintenanceRequestView(*request), nil
}

// Claim assigns an unassigned request to actorID and starts work on it. Only one
// of any number of concurrent claimants succeeds; the rest get ErrAlreadyClaimed.
func (s *LifecycleService) Claim(ctx context.Context, requestID, actorID int64) (view *models.MaintenanceRequestView, err error) {
	defer func() { s.record(opClaim, err) }()

	staff, err := s.directory.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}

	change, err := s.store.ConditionalUpdate(ctx, requestID,
		func(current models.MaintenanceRequest) error {
			if current.AssignedTo != nil {
				return appErrors.ErrAlreadyClaimed
			}
			if current.Status.Terminal() {
				return appErrors.Clone(appErrors.ErrRequestClosed, "request is "+current.Status.Label()+" and can no longer be claimed")
			}
			return nil
		},
		func(req *models.MaintenanceRequest) error {
			assignee := actorID
			req.AssignedTo = &assignee
			req.Status = models.RequestStatusInProgress
			return nil
		})
	if err != nil {
		if errors.Is(err, appErrors.ErrAlreadyClaimed) {
			s.metrics.RecordClaimConflict()
			s.logger.Info("claim lost", zap.Int64("request_id", requestID), zap.Int64("staff_id", actorID))
		}
		return nil, s.translateWriteError(err, "failed to claim maintenance request")
	}

	s.logger.Info("maintenance request claimed", zap.Int64("request_id", requestID), zap.Int64("staff_id", actorID))
	// A claim is announced to administrators as an acceptance only.
	s.publish(ctx, opClaim, models.LifecycleEvent{
		Kind:        models.EventStaffAccepted,
		Request:     change.After,
		Staff:       staff,
		OldStatus:   change.Before.Status,
		NewStatus:   change.After.Status,
		OldAssignee: change.Before.AssignedTo,
		NewAssignee: change.After.AssignedTo,
		OccurredAt:  change.After.UpdatedAt,
	})
	return models.NewMaintenanceRequestView(change.After), nil
}

// ApproveOrReject applies an administrator decision. All input is validated before
// the request is touched, so a failed call never changes state. The reason is stored
// only when the new status is rejected. This is the only operation that can move a
// closed request back to an open status.
func (s *LifecycleService) ApproveOrReject(ctx context.Context, requestID int64, in dto.ReviewRequest) (view *models.MaintenanceRequestView, err error) {
	defer func() { s.record(opApproveOrReject, err) }()

	status, err := parseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.RejectionReason)
	if status == models.RequestStatusRejected && reason == "" {
		return nil, appErrors.ErrMissingReason
	}
	assign, err := s.resolveAssignment(ctx, in.AssignedTo)
	if err != nil {
		return nil, err
	}

	change, err := s.store.ConditionalUpdate(ctx, requestID, nil, func(req *models.MaintenanceRequest) error {
		req.Status = status
		if status == models.RequestStatusRejected {
			req.RejectionReason = &reason
		}
		assign.apply(req)
		return nil
	})
	if err != nil {
		return nil, s.translateWriteError(err, "failed to review maintenance request")
	}

	s.logger.Info("maintenance request reviewed",
		zap.Int64("request_id", requestID),
		zap.String("old_status", string(change.Before.Status)),
		zap.String("new_status", string(change.After.Status)))
	s.publishChange(ctx, opApproveOrReject, *change, assign.user)
	return models.NewMaintenanceRequestView(change.After), nil
}

// Complete closes out a request, optionally recording who did the work.
func (s *LifecycleService) Complete(ctx context.Context, requestID int64, in dto.CompleteRequest) (view *models.MaintenanceRequestView, err error) {
	defer func() { s.record(opComplete, err) }()

	// Only a non-empty assignee overrides; completion never unassigns.
	var assign assignment
	if in.AssignedTo != nil && strings.TrimSpace(*in.AssignedTo) != "" {
		if assign, err = s.resolveAssignment(ctx, in.AssignedTo); err != nil {
			return nil, err
		}
	}
	policy := s.policy

	change, err := s.store.ConditionalUpdate(ctx, requestID,
		func(current models.MaintenanceRequest) error {
			if policy.AllowFromAnyStatus {
				return nil
			}
			if current.Status != models.RequestStatusApproved && current.Status != models.RequestStatusInProgress {
				return appErrors.Clone(appErrors.ErrInvalidStatus, "only approved or in-progress requests can be completed")
			}
			return nil
		},
		func(req *models.MaintenanceRequest) error {
			req.Status = models.RequestStatusCompleted
			if in.CompletionNotes != nil {
				req.CompletionNotes = optionalString(*in.CompletionNotes)
			}
			if in.CompletionPhoto != nil {
				req.CompletionPhoto = optionalString(*in.CompletionPhoto)
			}
			assign.apply(req)
			if policy.RequireEvidence && !req.HasCompletionEvidence() {
				return appErrors.ErrCompletionEvidence
			}
			return nil
		})
	if err != nil {
		return nil, s.translateWriteError(err, "failed to complete maintenance request")
	}

	s.logger.Info("maintenance request completed",
		zap.Int64("request_id", requestID),
		zap.String("old_status", string(change.Before.Status)))
	s.publishChange(ctx, opComplete, *change, assign.user)
	return models.NewMaintenanceRequestView(change.After), nil
}

// UpdateStatusGeneric applies whichever fields are present. The resulting record must
// still carry a rejection reason if it ends up rejected.
func (s *LifecycleService) UpdateStatusGeneric(ctx context.Context, requestID int64, in dto.StatusUpdate) (view *models.MaintenanceRequestView, err error) {
	defer func() { s.record(opUpdateStatus, err) }()

	var status models.RequestStatus
	if in.Status != nil {
		if status, err = parseStatus(*in.Status); err != nil {
			return nil, err
		}
	}
	assign, err := s.resolveAssignment(ctx, in.AssignedTo)
	if err != nil {
		return nil, err
	}

	change, err := s.store.ConditionalUpdate(ctx, requestID, nil, func(req *models.MaintenanceRequest) error {
		if in.Status != nil {
			req.Status = status
		}
		if in.RejectionReason != nil {
			req.RejectionReason = optionalString(*in.RejectionReason)
		}
		if in.CompletionNotes != nil {
			req.CompletionNotes = optionalString(*in.CompletionNotes)
		}
		if in.CompletionPhoto != nil {
			req.CompletionPhoto = optionalString(*in.CompletionPhoto)
		}
		assign.apply(req)
		if req.Status == models.RequestStatusRejected && req.RejectionReason == nil {
			return appErrors.ErrMissingReason
		}
		return nil
	})
	if err != nil {
		return nil, s.translateWriteError(err, "failed to update maintenance request")
	}

	s.logger.Info("maintenance request updated",
		zap.Int64("request_id", requestID),
		zap.String("old_status", string(change.Before.Status)),
		zap.String("new_status", string(change.After.Status)))
	s.publishChange(ctx, opUpdateStatus, *change, assign.user)
	return models.NewMaintenanceRequestView(change.After), nil
}

// Get returns a request with its status label.
func (s *LifecycleService) Get(ctx context.Context, requestID int64) (*models.MaintenanceRequestView, error) {
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load maintenance request")
	}
	return models.NewMaintenanceRequestView(*req), nil
}

// List returns requests matching filter, newest first.
func (s *LifecycleService) List(ctx context.Context, filter models.MaintenanceRequestFilter) ([]models.MaintenanceRequestView, error) {
	for _, status := range filter.Status {
		if !status.Valid() && status != models.RequestStatusForApproval {
			return nil, appErrors.ErrInvalidStatus
		}
	}
	requests, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list maintenance requests")
	}
	views := make([]models.MaintenanceRequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, *models.NewMaintenanceRequestView(req))
	}
	return views, nil
}

// assignment is a resolved assignee instruction from an admin operation.
type assignment struct {
	set   bool
	clear bool
	id    int64
	user  *models.User
}

func (a assignment) apply(req *models.MaintenanceRequest) {
	switch {
	case a.clear:
		req.AssignedTo = nil
	case a.set:
		id := a.id
		req.AssignedTo = &id
	}
}

// resolveAssignment reads the assignee field: nil leaves the assignee unchanged,
// an empty string clears it, anything else must be an existing user id.
func (s *LifecycleService) resolveAssignment(ctx context.Context, raw *string) (assignment, error) {
	if raw == nil {
		return assignment{}, nil
	}
	if strings.TrimSpace(*raw) == "" {
		return assignment{clear: true}, nil
	}
	id, err := parseActorID(raw)
	if err != nil {
		return assignment{}, err
	}
	user, err := s.directory.Resolve(ctx, *id)
	if err != nil {
		return assignment{}, err
	}
	return assignment{set: true, id: *id, user: user}, nil
}

func (s *LifecycleService) publishChange(ctx context.Context, operation string, change models.RequestChange, staff *models.User) {
	for _, event := range models.EventsForChange(change, change.After.UpdatedAt) {
		if event.Kind == models.EventStaffAccepted && staff != nil && event.NewAssignee != nil && staff.ID == *event.NewAssignee {
			event.Staff = staff
		}
		s.publish(ctx, operation, event)
	}
}

// publish runs after the write has committed. It never fails the operation.
func (s *LifecycleService) publish(ctx context.Context, operation string, event models.LifecycleEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.RecordRoutingFailure(event.Kind)
		s.logger.Error("failed to publish lifecycle event",
			zap.String("operation", operation),
			zap.String("event", string(event.Kind)),
			zap.Int64("request_id", event.Request.ID),
			zap.Error(err))
	}
}

func (s *LifecycleService) translateWriteError(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "request was modified concurrently")
	default:
		return appErrors.Internal(err, message)
	}
}

func (s *LifecycleService) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.RecordTransition(operation, OutcomeSuccess)
	case appErrors.FromError(err).Status < 500:
		s.metrics.RecordTransition(operation, OutcomeRejected)
	default:
		s.metrics.RecordTransition(operation, OutcomeError)
	}
}

func parseStatus(raw string) (models.RequestStatus, error) {
	status := models.RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", appErrors.Clone(appErrors.ErrInvalidStatus, "invalid status: "+strings.TrimSpace(raw))
	}
	return status, nil
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
