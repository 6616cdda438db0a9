package authorization

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nphies/bridge/internal/platform/fhir"
)

// Request kinds. A prior authorization and a claim submission share the same
// lifecycle against the exchange, so both live in authorization_request with
// a kind discriminator.
const (
	KindClaim     = "claim"
	KindPriorAuth = "priorauth"
)

// Final adjudication statuses.
const (
	StatusPending   = "pending"
	StatusQueued    = "queued"
	StatusApproved  = "approved"
	StatusDenied    = "denied"
	StatusPartial   = "partial"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Request maps to the authorization_request table: one submitted prior
// authorization or claim tracked against NPHIES.
type Request struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	FHIRID         string          `db:"fhir_id" json:"fhir_id"`
	Kind           string          `db:"kind" json:"kind"`
	PatientName    *string         `db:"patient_name" json:"patient_name,omitempty"`
	MemberID       *string         `db:"member_id" json:"member_id,omitempty"`
	ProviderID     *string         `db:"provider_id" json:"provider_id,omitempty"`
	PayerID        *string         `db:"payer_id" json:"payer_id,omitempty"`
	Status         string          `db:"status" json:"status"`
	Outcome        *string         `db:"outcome" json:"outcome,omitempty"`
	Disposition    *string         `db:"disposition" json:"disposition,omitempty"`
	PreAuthRef     *string         `db:"pre_auth_ref" json:"pre_auth_ref,omitempty"`
	RequestBundle  json.RawMessage `db:"request_bundle" json:"request_bundle,omitempty"`
	ResponseBundle json.RawMessage `db:"response_bundle" json:"response_bundle,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

func validKind(k string) bool {
	return k == KindClaim || k == KindPriorAuth
}

var validStatuses = map[string]bool{
	StatusPending: true, StatusQueued: true, StatusApproved: true,
	StatusDenied: true, StatusPartial: true, StatusError: true,
	StatusCancelled: true,
}

// ClaimReference returns the FHIR reference NPHIES knows this request by.
func (r *Request) ClaimReference() fhir.Reference {
	resourceType := "Claim"
	return fhir.Reference{Reference: fhir.FormatReference(resourceType, r.FHIRID)}
}
