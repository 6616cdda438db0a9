package communication

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nphies/bridge/internal/platform/fhir"
)

// Acknowledgment is an exchange confirmation for a previously-sent message,
// extracted from a Task entry in a poll response. Solicited is settled after
// interpretation, once the correlation store has matched the communication.
type Acknowledgment struct {
	TaskID          string          `json:"task_id"`
	CommunicationID string          `json:"communication_id"`
	Status          string          `json:"status"`
	Solicited       bool            `json:"solicited"`
	Raw             json.RawMessage `json:"-"`
}

// PollOutcome is the structured result of interpreting one response bundle.
// All slices are non-nil so a queued response reads as uniformly empty.
type PollOutcome struct {
	ResponseCode          string                              `json:"response_code"`
	CommunicationRequests []fhir.CommunicationRequestResource `json:"communication_requests"`
	ClaimResponses        []fhir.ClaimResponseResource        `json:"claim_responses"`
	Acknowledgments       []Acknowledgment                    `json:"acknowledgments"`
	Errors                []fhir.OperationOutcomeIssue        `json:"errors"`
	Bundle                *fhir.Bundle                        `json:"-"`
}

// HasFinalResponse reports whether the exchange delivered an adjudication.
func (o *PollOutcome) HasFinalResponse() bool {
	return len(o.ClaimResponses) > 0
}

// HasUnsolicitedAck reports whether any acknowledgment confirms an
// unsolicited communication. Only those expect a final ClaimResponse to
// follow; the ack for a solicited reply is terminal.
func (o *PollOutcome) HasUnsolicitedAck() bool {
	for _, a := range o.Acknowledgments {
		if !a.Solicited {
			return true
		}
	}
	return false
}

// Interpret maps a response bundle onto a PollOutcome. The MessageHeader
// response code drives everything: queued means nothing further is embedded,
// ok means the entries carry resources to act on, and the error codes carry
// OperationOutcome issues. Multiple resources of a kind are all returned;
// the caller decides which to act on.
func Interpret(bundle *fhir.Bundle) (*PollOutcome, error) {
	if bundle == nil {
		return nil, fmt.Errorf("interpret: nil bundle")
	}
	header := bundle.FindMessageHeader()
	if header == nil || header.Response == nil {
		return nil, fmt.Errorf("interpret: response bundle has no MessageHeader response")
	}

	outcome := &PollOutcome{
		ResponseCode:          header.Response.Code,
		CommunicationRequests: []fhir.CommunicationRequestResource{},
		ClaimResponses:        []fhir.ClaimResponseResource{},
		Acknowledgments:       []Acknowledgment{},
		Errors:                []fhir.OperationOutcomeIssue{},
		Bundle:                bundle,
	}

	switch header.Response.Code {
	case fhir.ResponseCodeQueued:
		// Nothing ready yet; the caller polls again later.
		return outcome, nil

	case fhir.ResponseCodeOK:
		for _, raw := range bundle.ResourcesOfType("CommunicationRequest") {
			var cr fhir.CommunicationRequestResource
			if err := json.Unmarshal(raw, &cr); err != nil {
				continue
			}
			outcome.CommunicationRequests = append(outcome.CommunicationRequests, cr)
		}
		for _, raw := range bundle.ResourcesOfType("ClaimResponse") {
			var cr fhir.ClaimResponseResource
			if err := json.Unmarshal(raw, &cr); err != nil {
				continue
			}
			outcome.ClaimResponses = append(outcome.ClaimResponses, cr)
		}
		for _, raw := range bundle.ResourcesOfType("Task") {
			var task fhir.Task
			if err := json.Unmarshal(raw, &task); err != nil {
				continue
			}
			ack := acknowledgmentFromTask(task, raw)
			if ack.CommunicationID == "" {
				continue
			}
			outcome.Acknowledgments = append(outcome.Acknowledgments, ack)
		}
		return outcome, nil

	case fhir.ResponseCodeTransientError, fhir.ResponseCodeFatalError:
		for _, raw := range bundle.ResourcesOfType("OperationOutcome") {
			var oo fhir.OperationOutcome
			if err := json.Unmarshal(raw, &oo); err != nil {
				continue
			}
			outcome.Errors = append(outcome.Errors, oo.Issue...)
		}
		return outcome, nil

	default:
		return nil, fmt.Errorf("interpret: unknown response code %q", header.Response.Code)
	}
}

// acknowledgmentFromTask reads the acknowledged communication id from the
// task focus (Communication/{id}) or identifier, and maps the task status
// onto the acknowledgment statuses the correlation store records.
func acknowledgmentFromTask(task fhir.Task, raw json.RawMessage) Acknowledgment {
	ack := Acknowledgment{TaskID: task.ID, Raw: raw}

	if task.Focus != nil && task.Focus.Reference != "" {
		ref := task.Focus.Reference
		if idx := strings.LastIndex(ref, "/"); idx >= 0 && strings.HasPrefix(ref, "Communication/") {
			ack.CommunicationID = ref[idx+1:]
		}
	}
	if ack.CommunicationID == "" {
		for _, ident := range task.Identifier {
			if ident.Value != "" {
				ack.CommunicationID = ident.Value
				break
			}
		}
	}

	switch task.Status {
	case "completed", "accepted":
		ack.Status = fhir.ResponseCodeOK
	case "rejected":
		ack.Status = fhir.ResponseCodeFatalError
	case "failed":
		ack.Status = fhir.ResponseCodeTransientError
	default:
		ack.Status = fhir.ResponseCodeQueued
	}
	return ack
}
