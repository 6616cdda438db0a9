package fhir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bundle represents a FHIR Bundle resource. NPHIES traffic uses type
// "message" exclusively; the first entry is always a MessageHeader.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// MessageHeader carries the message event and, on responses, the exchange's
// processing status for the request it answers.
type MessageHeader struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	EventCoding  *Coding                `json:"eventCoding,omitempty"`
	Destination  []MessageDestination   `json:"destination,omitempty"`
	Sender       *Reference             `json:"sender,omitempty"`
	Source       *MessageSource         `json:"source,omitempty"`
	Response     *MessageHeaderResponse `json:"response,omitempty"`
	Focus        []Reference            `json:"focus,omitempty"`
}

type MessageDestination struct {
	Endpoint string     `json:"endpoint,omitempty"`
	Receiver *Reference `json:"receiver,omitempty"`
}

type MessageSource struct {
	Endpoint string `json:"endpoint,omitempty"`
}

type MessageHeaderResponse struct {
	Identifier string `json:"identifier,omitempty"`
	Code       string `json:"code,omitempty"`
}

// MessageHeader response codes per FHIR R4 response-code value set.
const (
	ResponseCodeOK             = "ok"
	ResponseCodeQueued         = "queued"
	ResponseCodeTransientError = "transient-error"
	ResponseCodeFatalError     = "fatal-error"
)

// NPHIES message event codes.
const (
	EventStatusCheck   = "status-check"
	EventPollRequest   = "poll-request"
	EventCommunication = "communication"
	EventPriorAuth     = "priorauth-request"
	EventClaim         = "claim-request"
)

// NPHIESEventSystem is the coding system NPHIES assigns to message events.
const NPHIESEventSystem = "http://nphies.sa/terminology/CodeSystem/ksa-message-events"

// NewMessageBundle assembles a message Bundle whose first entry is the given
// MessageHeader, followed by the focus resources in order.
func NewMessageBundle(header *MessageHeader, resources ...interface{}) (*Bundle, error) {
	now := time.Now().UTC()
	b := &Bundle{
		ResourceType: "Bundle",
		ID:           uuid.New().String(),
		Type:         "message",
		Timestamp:    &now,
	}

	raw, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshal message header: %w", err)
	}
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  "urn:uuid:" + header.ID,
		Resource: raw,
	})

	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle resource: %w", err)
		}
		var res Resource
		_ = json.Unmarshal(raw, &res)
		entry := BundleEntry{Resource: raw}
		if res.ID != "" {
			entry.FullURL = "urn:uuid:" + res.ID
		}
		b.Entry = append(b.Entry, entry)
	}

	return b, nil
}

// FindMessageHeader returns the first MessageHeader entry in the bundle, or
// nil when the bundle carries none.
func (b *Bundle) FindMessageHeader() *MessageHeader {
	for _, entry := range b.Entry {
		var res Resource
		if err := json.Unmarshal(entry.Resource, &res); err != nil {
			continue
		}
		if res.ResourceType != "MessageHeader" {
			continue
		}
		var header MessageHeader
		if err := json.Unmarshal(entry.Resource, &header); err != nil {
			continue
		}
		return &header
	}
	return nil
}

// ResourcesOfType returns the raw JSON of every entry whose resourceType
// matches. Entries that fail to decode are skipped.
func (b *Bundle) ResourcesOfType(resourceType string) []json.RawMessage {
	var out []json.RawMessage
	for _, entry := range b.Entry {
		var res Resource
		if err := json.Unmarshal(entry.Resource, &res); err != nil {
			continue
		}
		if res.ResourceType == resourceType {
			out = append(out, entry.Resource)
		}
	}
	return out
}
