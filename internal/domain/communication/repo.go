package communication

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// CommunicationRepository persists outbound communications. The exchange
// delivers acknowledgments at-least-once via poll, so MarkAcknowledged must
// tolerate repeated delivery of the same acknowledgment.
type CommunicationRepository interface {
	RecordSent(ctx context.Context, c *Communication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Communication, error)
	GetByCommunicationID(ctx context.Context, communicationID string) (*Communication, error)
	ListByAuthorization(ctx context.Context, authorizationID uuid.UUID, limit, offset int) ([]*Communication, int, error)
	MarkAcknowledged(ctx context.Context, communicationID, status string, bundle json.RawMessage) error
}

// CommunicationRequestRepository persists insurer-issued requests. Upsert is
// keyed on the NPHIES request id: the same id replaces, never duplicates, and
// never resets an already-answered request.
type CommunicationRequestRepository interface {
	Upsert(ctx context.Context, cr *CommunicationRequest) error
	GetByRequestID(ctx context.Context, requestID string) (*CommunicationRequest, error)
	FindUnresponded(ctx context.Context, authorizationID uuid.UUID) ([]*CommunicationRequest, error)
	ListByAuthorization(ctx context.Context, authorizationID uuid.UUID, limit, offset int) ([]*CommunicationRequest, int, error)
	MarkResponded(ctx context.Context, requestID string) error
}
