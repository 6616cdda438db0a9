package authorization

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestHandlerCreateRequest(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))
	e := echo.New()

	body := `{"fhir_id":"pa-9","kind":"priorauth","patient_name":"Ahmed"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/authorizations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateRequest(c); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created Request
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != StatusPending {
		t.Errorf("status = %q, want pending", created.Status)
	}
}

func TestHandlerCreateRequestInvalidKind(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/authorizations",
		strings.NewReader(`{"fhir_id":"x","kind":"invoice"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateRequest(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 HTTPError", err)
	}
}

func TestHandlerGetRequest(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	subject := &Request{Kind: KindClaim, FHIRID: "claim-1"}
	if err := svc.CreateRequest(context.Background(), subject); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/authorizations/"+subject.ID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(subject.ID.String())

	if err := h.GetRequest(c); err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got Request
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FHIRID != "claim-1" {
		t.Errorf("fhir_id = %q", got.FHIRID)
	}
}

// failingRepo simulates a repository whose backend is down.
type failingRepo struct {
	memRepo
	err error
}

func (r *failingRepo) GetByID(context.Context, uuid.UUID) (*Request, error) {
	return nil, r.err
}

func TestHandlerGetRequestNotFound(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))
	e := echo.New()

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/authorizations/"+id.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	err := h.GetRequest(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 HTTPError", err)
	}
}

func TestHandlerGetRequestRepositoryFailure(t *testing.T) {
	repo := &failingRepo{err: errors.New("connection refused")}
	h := NewHandler(NewService(repo))
	e := echo.New()

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/authorizations/"+id.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	err := h.GetRequest(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500 HTTPError", err)
	}
}

func TestHandlerListRequestsFiltersKind(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	for _, kind := range []string{KindClaim, KindPriorAuth, KindPriorAuth} {
		if err := svc.CreateRequest(context.Background(), &Request{Kind: kind, FHIRID: kind + "-x"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/authorizations?kind=priorauth", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListRequests(c); err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	var body struct {
		Data  []*Request `json:"data"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}
}
