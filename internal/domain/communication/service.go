package communication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nphies/bridge/internal/domain/authorization"
	"github.com/nphies/bridge/internal/observability/metrics"
	"github.com/nphies/bridge/internal/platform/fhir"
	"github.com/nphies/bridge/internal/platform/nphies"
)

// ExchangeClient sends a message bundle and returns the response bundle.
// Implemented by the nphies transport client.
type ExchangeClient interface {
	ProcessMessage(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error)
}

// Service orchestrates the communication workflow: composing bundles,
// sending them, interpreting responses, and keeping the correlation store
// consistent. The store is the sole owner of persisted records; the service
// never mutates rows except through the repositories.
type Service struct {
	comms    CommunicationRepository
	requests CommunicationRequestRepository
	auths    *authorization.Service
	composer *Composer
	client   ExchangeClient
	metrics  *metrics.ExchangeMetrics
	logger   zerolog.Logger
}

func NewService(
	comms CommunicationRepository,
	requests CommunicationRequestRepository,
	auths *authorization.Service,
	composer *Composer,
	client ExchangeClient,
	m *metrics.ExchangeMetrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		comms:    comms,
		requests: requests,
		auths:    auths,
		composer: composer,
		client:   client,
		metrics:  m,
		logger:   logger,
	}
}

// SendInput is the caller-supplied shape of an outbound communication.
type SendInput struct {
	CommunicationType string    `json:"communication_type"`
	BasedOnRequestID  string    `json:"based_on_request_id,omitempty"`
	Category          string    `json:"category,omitempty"`
	Priority          string    `json:"priority,omitempty"`
	Payloads          []Payload `json:"payloads"`
}

// Send composes and transmits a communication for the given authorization
// request. A solicited communication must reference exactly one unresponded
// CommunicationRequest, which is marked responded exactly once after a
// successful send.
func (s *Service) Send(ctx context.Context, authorizationID uuid.UUID, input SendInput) (*Communication, error) {
	req, err := s.auths.GetRequest(ctx, authorizationID)
	if err != nil {
		return nil, fmt.Errorf("load authorization request: %w", err)
	}

	commType := input.CommunicationType
	if commType == "" {
		commType = TypeUnsolicited
	}
	if commType != TypeUnsolicited && commType != TypeSolicited {
		return nil, &nphies.ValidationError{Field: "communication_type", Message: "must be unsolicited or solicited"}
	}

	comm := &Communication{
		CommunicationID:   uuid.New().String(),
		AuthorizationID:   authorizationID,
		CommunicationType: commType,
		Category:          input.Category,
		Priority:          input.Priority,
		Payloads:          input.Payloads,
		Status:            StatusDraft,
	}

	if commType == TypeSolicited {
		if input.BasedOnRequestID == "" {
			return nil, &nphies.ValidationError{Field: "based_on_request_id", Message: "solicited communication must reference a communication request"}
		}
		target, err := s.requests.GetByRequestID(ctx, input.BasedOnRequestID)
		if err != nil {
			return nil, &nphies.ValidationError{Field: "based_on_request_id", Message: fmt.Sprintf("unknown communication request %s", input.BasedOnRequestID)}
		}
		if !target.Unresponded() {
			return nil, &nphies.ValidationError{Field: "based_on_request_id", Message: fmt.Sprintf("communication request %s already responded", input.BasedOnRequestID)}
		}
		comm.BasedOnRequestID = &target.RequestID
	}

	bundle, err := s.composer.BuildCommunication(comm, req)
	if err != nil {
		return nil, err
	}
	comm.RequestBundle, _ = json.Marshal(bundle)

	resp, err := s.client.ProcessMessage(ctx, bundle)
	if err != nil {
		return nil, err
	}
	comm.ResponseBundle, _ = json.Marshal(resp)

	if header := resp.FindMessageHeader(); header != nil && header.Response != nil {
		switch header.Response.Code {
		case fhir.ResponseCodeOK, fhir.ResponseCodeQueued:
			comm.Status = StatusCompleted
		case fhir.ResponseCodeTransientError, fhir.ResponseCodeFatalError:
			outcome, ierr := Interpret(resp)
			if ierr != nil {
				return nil, ierr
			}
			return nil, &nphies.ExchangeError{Code: outcome.ResponseCode, Issues: outcome.Errors}
		}
	} else {
		comm.Status = StatusCompleted
	}

	// The exchange may echo our Communication back with its own id.
	for _, raw := range resp.ResourcesOfType("Communication") {
		var echoed fhir.CommunicationResource
		if err := json.Unmarshal(raw, &echoed); err != nil {
			continue
		}
		if echoed.ID != "" && echoed.ID != comm.CommunicationID {
			id := echoed.ID
			comm.NPHIESCommunicationID = &id
			break
		}
	}

	if err := s.comms.RecordSent(ctx, comm); err != nil {
		return nil, fmt.Errorf("record sent communication: %w", err)
	}

	if comm.IsSolicited() {
		if err := s.requests.MarkResponded(ctx, *comm.BasedOnRequestID); err != nil {
			return nil, fmt.Errorf("mark communication request responded: %w", err)
		}
	}

	s.logger.Info().
		Str("communication_id", comm.CommunicationID).
		Str("type", comm.CommunicationType).
		Str("authorization_id", authorizationID.String()).
		Int("payloads", len(comm.Payloads)).
		Msg("communication sent")
	return comm, nil
}

// RunPollCycle performs one poll round trip for a subject and reconciles the
// correlation store with whatever the exchange delivered. Repeated delivery
// of the same CommunicationRequest or acknowledgment is absorbed by the
// idempotent repository operations.
func (s *Service) RunPollCycle(ctx context.Context, authorizationID uuid.UUID) (*PollOutcome, error) {
	req, err := s.auths.GetRequest(ctx, authorizationID)
	if err != nil {
		return nil, fmt.Errorf("load authorization request: %w", err)
	}

	bundle, err := s.composer.BuildPoll(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.ProcessMessage(ctx, bundle)
	if err != nil {
		return nil, err
	}

	outcome, err := Interpret(resp)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePollCycle(outcome.ResponseCode)

	return outcome, s.reconcile(ctx, req, outcome)
}

// StatusCheck asks the exchange for the current adjudication state of a
// request. The response is handled exactly like a poll response since it may
// embed the final ClaimResponse directly.
func (s *Service) StatusCheck(ctx context.Context, authorizationID uuid.UUID) (*PollOutcome, error) {
	req, err := s.auths.GetRequest(ctx, authorizationID)
	if err != nil {
		return nil, fmt.Errorf("load authorization request: %w", err)
	}

	bundle, err := s.composer.BuildStatusCheck(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.ProcessMessage(ctx, bundle)
	if err != nil {
		return nil, err
	}

	outcome, err := Interpret(resp)
	if err != nil {
		return nil, err
	}

	return outcome, s.reconcile(ctx, req, outcome)
}

// reconcile applies an interpreted outcome to the correlation store and the
// subject record.
func (s *Service) reconcile(ctx context.Context, req *authorization.Request, outcome *PollOutcome) error {
	switch outcome.ResponseCode {
	case fhir.ResponseCodeQueued:
		if err := s.auths.MarkQueued(ctx, req.ID); err != nil {
			return fmt.Errorf("mark queued: %w", err)
		}
		return nil

	case fhir.ResponseCodeTransientError, fhir.ResponseCodeFatalError:
		return &nphies.ExchangeError{Code: outcome.ResponseCode, Issues: outcome.Errors}
	}

	now := time.Now().UTC()
	for i := range outcome.CommunicationRequests {
		cr := &outcome.CommunicationRequests[i]
		raw, _ := json.Marshal(cr)
		text := cr.PayloadText()
		record := &CommunicationRequest{
			RequestID:       cr.BusinessID(),
			AuthorizationID: req.ID,
			ReceivedAt:      now,
			RawResource:     raw,
		}
		if text != "" {
			record.PayloadText = &text
		}
		if err := s.requests.Upsert(ctx, record); err != nil {
			return fmt.Errorf("upsert communication request %s: %w", record.RequestID, err)
		}
	}

	for i := range outcome.Acknowledgments {
		ack := &outcome.Acknowledgments[i]
		if err := s.comms.MarkAcknowledged(ctx, ack.CommunicationID, ack.Status, ack.Raw); err != nil {
			return fmt.Errorf("mark acknowledged %s: %w", ack.CommunicationID, err)
		}
		// An ack for an unknown communication stays unsolicited, which
		// errs on the side of fetching the final response.
		if c, err := s.comms.GetByCommunicationID(ctx, ack.CommunicationID); err == nil {
			ack.Solicited = c.IsSolicited()
		}
	}

	// First ClaimResponse wins for the final status.
	if outcome.HasFinalResponse() {
		cr := outcome.ClaimResponses[0]
		respBundle, _ := json.Marshal(outcome.Bundle)
		if _, err := s.auths.ApplyAdjudication(ctx, req.ID, cr.Status, cr.Outcome, cr.Disposition, cr.PreAuthRef, respBundle); err != nil {
			return fmt.Errorf("apply adjudication: %w", err)
		}
	}

	return nil
}

// ListCommunications returns the sent communications for a subject.
func (s *Service) ListCommunications(ctx context.Context, authorizationID uuid.UUID, limit, offset int) ([]*Communication, int, error) {
	return s.comms.ListByAuthorization(ctx, authorizationID, limit, offset)
}

// ListCommunicationRequests returns the insurer-issued requests for a
// subject.
func (s *Service) ListCommunicationRequests(ctx context.Context, authorizationID uuid.UUID, limit, offset int) ([]*CommunicationRequest, int, error) {
	return s.requests.ListByAuthorization(ctx, authorizationID, limit, offset)
}

// FindUnrespondedRequests returns the requests still awaiting a solicited
// reply for a subject.
func (s *Service) FindUnrespondedRequests(ctx context.Context, authorizationID uuid.UUID) ([]*CommunicationRequest, error) {
	return s.requests.FindUnresponded(ctx, authorizationID)
}
