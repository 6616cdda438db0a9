package authorization

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repository lookups when no authorization
// request matches.
var ErrNotFound = errors.New("authorization request not found")

type RequestRepository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*Request, error)
	Update(ctx context.Context, r *Request) error
	List(ctx context.Context, kind string, limit, offset int) ([]*Request, int, error)
}
