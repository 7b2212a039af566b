package port

import (
	"context"

	"github.com/wrdsb/user-directory-api/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserUpdated(ctx context.Context, event domain.UserUpdatedEvent) error
	PublishRolesAssigned(ctx context.Context, event domain.RolesAssignedEvent) error
}
