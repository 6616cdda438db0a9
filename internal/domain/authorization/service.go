package authorization

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo RequestRepository
}

func NewService(repo RequestRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateRequest(ctx context.Context, r *Request) error {
	if !validKind(r.Kind) {
		return fmt.Errorf("invalid kind: %s", r.Kind)
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !validStatuses[r.Status] {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetRequestByFHIRID(ctx context.Context, fhirID string) (*Request, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

func (s *Service) ListRequests(ctx context.Context, kind string, limit, offset int) ([]*Request, int, error) {
	if kind != "" && !validKind(kind) {
		return nil, 0, fmt.Errorf("invalid kind: %s", kind)
	}
	return s.repo.List(ctx, kind, limit, offset)
}

// ApplyAdjudication records the final ClaimResponse for a request. The status
// is classified from the response fields; the raw response bundle is retained
// for audit.
func (s *Service) ApplyAdjudication(ctx context.Context, id uuid.UUID, status, outcome, disposition, preAuthRef string, responseBundle json.RawMessage) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Status = ClassifyFinalStatus(status, outcome, disposition)
	if outcome != "" {
		r.Outcome = &outcome
	}
	if disposition != "" {
		r.Disposition = &disposition
	}
	if preAuthRef != "" {
		r.PreAuthRef = &preAuthRef
	}
	if len(responseBundle) > 0 {
		r.ResponseBundle = responseBundle
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// MarkQueued records that the exchange has accepted but not yet adjudicated
// the request.
func (s *Service) MarkQueued(ctx context.Context, id uuid.UUID) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusPending && r.Status != StatusQueued {
		return nil
	}
	r.Status = StatusQueued
	return s.repo.Update(ctx, r)
}

// ClassifyFinalStatus derives the terminal request status from a
// ClaimResponse. The status field wins when it already names a final state;
// otherwise the outcome and disposition are matched by substring, and a
// completed outcome with no other signal counts as approved.
func ClassifyFinalStatus(status, outcome, disposition string) string {
	switch status {
	case StatusApproved, StatusDenied, StatusPartial:
		return status
	}

	combined := strings.ToLower(outcome + " " + disposition)
	switch {
	case strings.Contains(combined, "approved"), strings.Contains(combined, "accept"):
		return StatusApproved
	case strings.Contains(combined, "denied"), strings.Contains(combined, "reject"):
		return StatusDenied
	case strings.ToLower(outcome) == "partial":
		return StatusPartial
	case strings.ToLower(outcome) == "complete":
		return StatusApproved
	}
	return StatusApproved
}
