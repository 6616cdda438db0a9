package fhir

// Resource shapes exchanged inside NPHIES message bundles. Only the fields
// this service reads or writes are modeled; everything else passes through as
// raw JSON on the bundle entry.

// Task is used both for outbound poll/status-check requests and for the
// acknowledgment entries NPHIES returns on poll.
type Task struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id,omitempty"`
	Identifier   []Identifier     `json:"identifier,omitempty"`
	Status       string           `json:"status,omitempty"`
	Intent       string           `json:"intent,omitempty"`
	Code         *CodeableConcept `json:"code,omitempty"`
	Focus        *Reference       `json:"focus,omitempty"`
	AuthoredOn   string           `json:"authoredOn,omitempty"`
	Requester    *Reference       `json:"requester,omitempty"`
	Owner        *Reference       `json:"owner,omitempty"`
	Input        []TaskInput      `json:"input,omitempty"`
	Output       []TaskOutput     `json:"output,omitempty"`
}

type TaskInput struct {
	Type             *CodeableConcept `json:"type,omitempty"`
	ValueString      string           `json:"valueString,omitempty"`
	ValuePositiveInt int              `json:"valuePositiveInt,omitempty"`
	ValueReference   *Reference       `json:"valueReference,omitempty"`
}

type TaskOutput struct {
	Type           *CodeableConcept `json:"type,omitempty"`
	ValueString    string           `json:"valueString,omitempty"`
	ValueReference *Reference       `json:"valueReference,omitempty"`
}

// CommunicationResource is the outbound Communication message body and the
// shape of any Communication echoed back by the exchange.
type CommunicationResource struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Identifier   []Identifier           `json:"identifier,omitempty"`
	Status       string                 `json:"status,omitempty"`
	BasedOn      []Reference            `json:"basedOn,omitempty"`
	Category     []CodeableConcept      `json:"category,omitempty"`
	Priority     string                 `json:"priority,omitempty"`
	Subject      *Reference             `json:"subject,omitempty"`
	About        []Reference            `json:"about,omitempty"`
	Sender       *Reference             `json:"sender,omitempty"`
	Recipient    []Reference            `json:"recipient,omitempty"`
	Payload      []CommunicationPayload `json:"payload,omitempty"`
}

// CommunicationPayload holds exactly one of ContentString or
// ContentAttachment. Item-sequence tags ride on extensions so the exchange can
// relate a payload to specific claim line items.
type CommunicationPayload struct {
	Extension         []Extension `json:"extension,omitempty"`
	ContentString     string      `json:"contentString,omitempty"`
	ContentAttachment *Attachment `json:"contentAttachment,omitempty"`
}

// ItemSequenceExtensionURL tags a payload with a related claim item sequence.
const ItemSequenceExtensionURL = "http://nphies.sa/fhir/ksa/nphies-fs/StructureDefinition/extension-item-sequence"

// CommunicationRequestResource is the insurer-issued request for additional
// information, delivered only via poll.
type CommunicationRequestResource struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Identifier   []Identifier           `json:"identifier,omitempty"`
	Status       string                 `json:"status,omitempty"`
	BasedOn      []Reference            `json:"basedOn,omitempty"`
	Subject      *Reference             `json:"subject,omitempty"`
	About        []Reference            `json:"about,omitempty"`
	Payload      []CommunicationPayload `json:"payload,omitempty"`
	AuthoredOn   string                 `json:"authoredOn,omitempty"`
	Requester    *Reference             `json:"requester,omitempty"`
}

// BusinessID returns the NPHIES-assigned business identifier of the request,
// falling back to the resource id when no identifier is present.
func (cr *CommunicationRequestResource) BusinessID() string {
	for _, ident := range cr.Identifier {
		if ident.Value != "" {
			return ident.Value
		}
	}
	return cr.ID
}

// PayloadText concatenates the text payloads of the request.
func (cr *CommunicationRequestResource) PayloadText() string {
	var text string
	for _, p := range cr.Payload {
		if p.ContentString == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += p.ContentString
	}
	return text
}

// ClaimResponseResource is the adjudication NPHIES returns for a submitted
// claim or prior authorization.
type ClaimResponseResource struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Status       string       `json:"status,omitempty"`
	Outcome      string       `json:"outcome,omitempty"`
	Disposition  string       `json:"disposition,omitempty"`
	Request      *Reference   `json:"request,omitempty"`
	PreAuthRef   string       `json:"preAuthRef,omitempty"`
}
