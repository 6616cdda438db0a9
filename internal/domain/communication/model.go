package communication

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nphies/bridge/internal/platform/fhir"
)

// Communication types. A solicited communication answers an insurer-issued
// CommunicationRequest; an unsolicited one is provider-initiated.
const (
	TypeUnsolicited = "unsolicited"
	TypeSolicited   = "solicited"
)

// Communication statuses.
const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
)

// Payload is one ordered element of a communication: either free text or an
// attachment, optionally tagged with the claim item sequences it relates to.
// Sequence numbers are implied by array position, 1-based.
type Payload struct {
	ContentString string           `json:"content_string,omitempty"`
	Attachment    *fhir.Attachment `json:"attachment,omitempty"`
	ItemSequences []int            `json:"item_sequences,omitempty"`
}

// Communication maps to the communication table: one outbound message sent to
// the exchange, tracked until its acknowledgment arrives via poll.
type Communication struct {
	ID                     uuid.UUID       `db:"id" json:"id"`
	CommunicationID        string          `db:"communication_id" json:"communication_id"`
	NPHIESCommunicationID  *string         `db:"nphies_communication_id" json:"nphies_communication_id,omitempty"`
	AuthorizationID        uuid.UUID       `db:"authorization_id" json:"authorization_id"`
	CommunicationType      string          `db:"communication_type" json:"communication_type"`
	BasedOnRequestID       *string         `db:"based_on_request_id" json:"based_on_request_id,omitempty"`
	Category               string          `db:"category" json:"category,omitempty"`
	Priority               string          `db:"priority" json:"priority,omitempty"`
	Payloads               []Payload       `db:"payloads" json:"payloads"`
	Status                 string          `db:"status" json:"status"`
	AcknowledgmentReceived bool            `db:"acknowledgment_received" json:"acknowledgment_received"`
	AcknowledgmentStatus   *string         `db:"acknowledgment_status" json:"acknowledgment_status,omitempty"`
	AcknowledgmentAt       *time.Time      `db:"acknowledgment_at" json:"acknowledgment_at,omitempty"`
	RequestBundle          json.RawMessage `db:"request_bundle" json:"request_bundle,omitempty"`
	ResponseBundle         json.RawMessage `db:"response_bundle" json:"response_bundle,omitempty"`
	AcknowledgmentBundle   json.RawMessage `db:"acknowledgment_bundle" json:"acknowledgment_bundle,omitempty"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at" json:"updated_at"`
}

// IsSolicited reports whether this communication answers a
// CommunicationRequest.
func (c *Communication) IsSolicited() bool {
	return c.CommunicationType == TypeSolicited
}

// CommunicationRequest maps to the communication_request table: one
// insurer-issued request for information, received via poll. RespondedAt is
// null until a solicited Communication answers it; a request is answered at
// most once.
type CommunicationRequest struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RequestID       string          `db:"request_id" json:"request_id"`
	AuthorizationID uuid.UUID       `db:"authorization_id" json:"authorization_id"`
	PayloadText     *string         `db:"payload_text" json:"payload_text,omitempty"`
	ReceivedAt      time.Time       `db:"received_at" json:"received_at"`
	RespondedAt     *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	RawResource     json.RawMessage `db:"raw_resource" json:"raw_resource,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Unresponded reports whether the request is still awaiting an answer.
func (cr *CommunicationRequest) Unresponded() bool {
	return cr.RespondedAt == nil
}
