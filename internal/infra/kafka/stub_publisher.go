package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
	"github.com/wrdsb/user-directory-api/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, userID int64, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Int64("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserUpdated logs directory.user.updated events.
func (p *StubPublisher) PublishUserUpdated(_ context.Context, event domain.UserUpdatedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"id_number":      event.IDNumber,
		"updated_by":     event.UpdatedBy,
		"updated_at":     event.UpdatedAt,
		"changed_fields": event.ChangedFields,
		"metadata":       event.Metadata,
	}
	p.logEvent("directory.user.updated", event.UserID, event.UpdatedAt, payload)
	return nil
}

// PublishRolesAssigned logs directory.user.roles.assigned events.
func (p *StubPublisher) PublishRolesAssigned(_ context.Context, event domain.RolesAssignedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"roles_added": event.RolesAdded,
		"assigned_by": event.AssignedBy,
		"assigned_at": event.AssignedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("directory.user.roles.assigned", event.UserID, event.AssignedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
