package communication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nphies/bridge/internal/domain/authorization"
	"github.com/nphies/bridge/internal/platform/fhir"
)

// In-memory repositories mirroring the Postgres semantics, shared by the
// service and scheduler tests.

type memAuthRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*authorization.Request
}

func newMemAuthRepo() *memAuthRepo {
	return &memAuthRepo{items: make(map[uuid.UUID]*authorization.Request)}
}

func (r *memAuthRepo) Create(_ context.Context, req *authorization.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	r.items[req.ID] = req
	return nil
}

func (r *memAuthRepo) GetByID(_ context.Context, id uuid.UUID) (*authorization.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return nil, authorization.ErrNotFound
	}
	return req, nil
}

func (r *memAuthRepo) GetByFHIRID(_ context.Context, fhirID string) (*authorization.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.items {
		if req.FHIRID == fhirID {
			return req, nil
		}
	}
	return nil, authorization.ErrNotFound
}

func (r *memAuthRepo) Update(_ context.Context, req *authorization.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[req.ID] = req
	return nil
}

func (r *memAuthRepo) List(_ context.Context, kind string, limit, offset int) ([]*authorization.Request, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*authorization.Request
	for _, req := range r.items {
		if kind == "" || req.Kind == kind {
			out = append(out, req)
		}
	}
	return out, len(out), nil
}

type memCommRepo struct {
	mu    sync.Mutex
	items []*Communication
	acks  map[string]int // communication id -> MarkAcknowledged calls
}

func newMemCommRepo() *memCommRepo {
	return &memCommRepo{acks: make(map[string]int)}
}

func (r *memCommRepo) RecordSent(_ context.Context, c *Communication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.New()
	if c.CommunicationID == "" {
		c.CommunicationID = c.ID.String()
	}
	c.CreatedAt = time.Now()
	r.items = append(r.items, c)
	return nil
}

func (r *memCommRepo) GetByID(_ context.Context, id uuid.UUID) (*Communication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("communication %s not found", id)
}

func (r *memCommRepo) GetByCommunicationID(_ context.Context, communicationID string) (*Communication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.CommunicationID == communicationID {
			return c, nil
		}
		if c.NPHIESCommunicationID != nil && *c.NPHIESCommunicationID == communicationID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("communication %s not found", communicationID)
}

func (r *memCommRepo) ListByAuthorization(_ context.Context, authorizationID uuid.UUID, limit, offset int) ([]*Communication, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Communication
	for _, c := range r.items {
		if c.AuthorizationID == authorizationID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *memCommRepo) MarkAcknowledged(_ context.Context, communicationID, status string, bundle json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks[communicationID]++
	for _, c := range r.items {
		matches := c.CommunicationID == communicationID ||
			(c.NPHIESCommunicationID != nil && *c.NPHIESCommunicationID == communicationID)
		if !matches {
			continue
		}
		c.AcknowledgmentReceived = true
		c.AcknowledgmentStatus = &status
		if c.AcknowledgmentAt == nil {
			now := time.Now()
			c.AcknowledgmentAt = &now
		}
		c.AcknowledgmentBundle = bundle
	}
	return nil
}

type memCommReqRepo struct {
	mu      sync.Mutex
	items   map[string]*CommunicationRequest
	upserts map[string]int
}

func newMemCommReqRepo() *memCommReqRepo {
	return &memCommReqRepo{
		items:   make(map[string]*CommunicationRequest),
		upserts: make(map[string]int),
	}
}

func (r *memCommReqRepo) Upsert(_ context.Context, cr *CommunicationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts[cr.RequestID]++
	if existing, ok := r.items[cr.RequestID]; ok {
		existing.PayloadText = cr.PayloadText
		existing.RawResource = cr.RawResource
		return nil
	}
	if cr.ID == uuid.Nil {
		cr.ID = uuid.New()
	}
	r.items[cr.RequestID] = cr
	return nil
}

func (r *memCommReqRepo) GetByRequestID(_ context.Context, requestID string) (*CommunicationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cr, ok := r.items[requestID]
	if !ok {
		return nil, fmt.Errorf("communication request %s not found", requestID)
	}
	return cr, nil
}

func (r *memCommReqRepo) FindUnresponded(_ context.Context, authorizationID uuid.UUID) ([]*CommunicationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*CommunicationRequest
	for _, cr := range r.items {
		if cr.AuthorizationID == authorizationID && cr.RespondedAt == nil {
			out = append(out, cr)
		}
	}
	return out, nil
}

func (r *memCommReqRepo) ListByAuthorization(_ context.Context, authorizationID uuid.UUID, limit, offset int) ([]*CommunicationRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*CommunicationRequest
	for _, cr := range r.items {
		if cr.AuthorizationID == authorizationID {
			out = append(out, cr)
		}
	}
	return out, len(out), nil
}

func (r *memCommReqRepo) MarkResponded(_ context.Context, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cr, ok := r.items[requestID]
	if !ok {
		return fmt.Errorf("communication request %s not found", requestID)
	}
	if cr.RespondedAt != nil {
		return fmt.Errorf("communication request %s already responded", requestID)
	}
	now := time.Now()
	cr.RespondedAt = &now
	return nil
}

// fakeExchange returns canned response bundles in order, then repeats the
// last one.
type fakeExchange struct {
	mu        sync.Mutex
	responses []*fhir.Bundle
	err       error
	calls     int
	sent      []*fhir.Bundle
}

func (f *fakeExchange) ProcessMessage(_ context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, bundle)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("fakeExchange: no response configured")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

// responseBundle builds a message bundle whose header answers with the given
// code and whose entries carry the given resources.
func responseBundle(code string, resources ...interface{}) *fhir.Bundle {
	header := &fhir.MessageHeader{
		ResourceType: "MessageHeader",
		ID:           uuid.New().String(),
		Response:     &fhir.MessageHeaderResponse{Identifier: uuid.New().String(), Code: code},
	}
	b, err := fhir.NewMessageBundle(header, resources...)
	if err != nil {
		panic(err)
	}
	return b
}

func newTestSubject(t interface{ Fatalf(string, ...interface{}) }, repo *memAuthRepo) *authorization.Request {
	req := &authorization.Request{
		ID:     uuid.New(),
		FHIRID: "claim-" + uuid.New().String()[:8],
		Kind:   authorization.KindPriorAuth,
		Status: authorization.StatusPending,
	}
	if err := repo.Create(context.Background(), req); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	return req
}
