package communication

import (
	"time"

	"github.com/google/uuid"

	"github.com/nphies/bridge/internal/domain/authorization"
	"github.com/nphies/bridge/internal/platform/fhir"
	"github.com/nphies/bridge/internal/platform/nphies"
)

// Composer deterministically builds outbound message bundles from local
// record state. It performs no I/O; every builder either returns a complete
// Bundle or fails with a ValidationError before anything reaches the wire.
type Composer struct {
	providerID string
	payerID    string
	endpoint   string
}

func NewComposer(providerID, payerID, endpoint string) *Composer {
	return &Composer{providerID: providerID, payerID: payerID, endpoint: endpoint}
}

func (cp *Composer) header(event string) *fhir.MessageHeader {
	return &fhir.MessageHeader{
		ResourceType: "MessageHeader",
		ID:           uuid.New().String(),
		EventCoding: &fhir.Coding{
			System: fhir.NPHIESEventSystem,
			Code:   event,
		},
		Destination: []fhir.MessageDestination{{
			Endpoint: cp.endpoint,
			Receiver: &fhir.Reference{
				Identifier: &fhir.Identifier{System: "http://nphies.sa/license/payer-license", Value: cp.payerID},
			},
		}},
		Sender: &fhir.Reference{
			Identifier: &fhir.Identifier{System: "http://nphies.sa/license/provider-license", Value: cp.providerID},
		},
		Source: &fhir.MessageSource{Endpoint: "http://provider.com"},
	}
}

// BuildStatusCheck builds a status-check bundle asking the exchange for the
// current adjudication state of one submitted request.
func (cp *Composer) BuildStatusCheck(req *authorization.Request) (*fhir.Bundle, error) {
	if req == nil {
		return nil, &nphies.ValidationError{Field: "request", Message: "subject request is required"}
	}
	claimRef := req.ClaimReference()
	task := &fhir.Task{
		ResourceType: "Task",
		ID:           uuid.New().String(),
		Status:       "requested",
		Intent:       "order",
		Code: &fhir.CodeableConcept{Coding: []fhir.Coding{{
			System: "http://nphies.sa/terminology/CodeSystem/task-code",
			Code:   "status",
		}}},
		Focus:      &claimRef,
		AuthoredOn: time.Now().UTC().Format(time.RFC3339),
		Requester: &fhir.Reference{
			Identifier: &fhir.Identifier{System: "http://nphies.sa/license/provider-license", Value: cp.providerID},
		},
	}
	return fhir.NewMessageBundle(cp.header(fhir.EventStatusCheck), task)
}

// BuildPoll builds a poll-request bundle. With a subject the poll is scoped
// to messages about that request; without one it drains the whole provider
// queue.
func (cp *Composer) BuildPoll(req *authorization.Request) (*fhir.Bundle, error) {
	task := &fhir.Task{
		ResourceType: "Task",
		ID:           uuid.New().String(),
		Status:       "requested",
		Intent:       "order",
		Code: &fhir.CodeableConcept{Coding: []fhir.Coding{{
			System: "http://nphies.sa/terminology/CodeSystem/task-code",
			Code:   "poll",
		}}},
		AuthoredOn: time.Now().UTC().Format(time.RFC3339),
		Requester: &fhir.Reference{
			Identifier: &fhir.Identifier{System: "http://nphies.sa/license/provider-license", Value: cp.providerID},
		},
	}
	if req != nil {
		claimRef := req.ClaimReference()
		task.Input = append(task.Input, fhir.TaskInput{
			Type: &fhir.CodeableConcept{Coding: []fhir.Coding{{
				System: "http://nphies.sa/terminology/CodeSystem/task-input-type",
				Code:   "include-message-type",
			}}},
			ValueReference: &claimRef,
		})
	}
	return fhir.NewMessageBundle(cp.header(fhir.EventPollRequest), task)
}

// BuildCommunication builds the communication bundle for an outbound message.
// Payload order is preserved; sequence numbers are the 1-based array
// positions, and attachment data is passed through untouched.
func (cp *Composer) BuildCommunication(comm *Communication, req *authorization.Request) (*fhir.Bundle, error) {
	if len(comm.Payloads) == 0 {
		return nil, &nphies.ValidationError{Field: "payloads", Message: "communication requires at least one payload"}
	}
	if comm.IsSolicited() && (comm.BasedOnRequestID == nil || *comm.BasedOnRequestID == "") {
		return nil, &nphies.ValidationError{Field: "based_on_request_id", Message: "solicited communication must reference a communication request"}
	}
	if req == nil {
		return nil, &nphies.ValidationError{Field: "request", Message: "subject request is required"}
	}

	resource := &fhir.CommunicationResource{
		ResourceType: "Communication",
		ID:           comm.CommunicationID,
		Identifier: []fhir.Identifier{{
			System: "http://provider.com/communication",
			Value:  comm.CommunicationID,
		}},
		Status:   "completed",
		Priority: comm.Priority,
		About:    []fhir.Reference{req.ClaimReference()},
		Sender: &fhir.Reference{
			Identifier: &fhir.Identifier{System: "http://nphies.sa/license/provider-license", Value: cp.providerID},
		},
		Recipient: []fhir.Reference{{
			Identifier: &fhir.Identifier{System: "http://nphies.sa/license/payer-license", Value: cp.payerID},
		}},
	}
	if comm.Category != "" {
		resource.Category = []fhir.CodeableConcept{{Coding: []fhir.Coding{{
			System: "http://terminology.hl7.org/CodeSystem/communication-category",
			Code:   comm.Category,
		}}}}
	}
	if comm.IsSolicited() {
		resource.BasedOn = []fhir.Reference{{
			Reference: fhir.FormatReference("CommunicationRequest", *comm.BasedOnRequestID),
		}}
	}

	for _, p := range comm.Payloads {
		payload := fhir.CommunicationPayload{
			ContentString:     p.ContentString,
			ContentAttachment: p.Attachment,
		}
		for _, seq := range p.ItemSequences {
			seq := seq
			payload.Extension = append(payload.Extension, fhir.Extension{
				URL:          fhir.ItemSequenceExtensionURL,
				ValueInteger: &seq,
			})
		}
		resource.Payload = append(resource.Payload, payload)
	}

	return fhir.NewMessageBundle(cp.header(fhir.EventCommunication), resource)
}
