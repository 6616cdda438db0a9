package nphies

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nphies/bridge/internal/platform/fhir"
)

func messageBundle(t *testing.T, event string) *fhir.Bundle {
	t.Helper()
	header := &fhir.MessageHeader{
		ResourceType: "MessageHeader",
		ID:           uuid.New().String(),
		EventCoding:  &fhir.Coding{System: fhir.NPHIESEventSystem, Code: event},
	}
	b, err := fhir.NewMessageBundle(header)
	if err != nil {
		t.Fatalf("build bundle: %v", err)
	}
	return b
}

func okResponseBody(t *testing.T) []byte {
	t.Helper()
	header := &fhir.MessageHeader{
		ResourceType: "MessageHeader",
		ID:           uuid.New().String(),
		Response:     &fhir.MessageHeaderResponse{Code: fhir.ResponseCodeOK},
	}
	b, err := fhir.NewMessageBundle(header)
	if err != nil {
		t.Fatalf("build response: %v", err)
	}
	raw, _ := json.Marshal(b)
	return raw
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL:    baseURL,
		LicenseID:  "LIC-1",
		ProviderID: "PR-FHIR",
		RetryDelay: 5 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestProcessMessage(t *testing.T) {
	var gotPath, gotContentType, gotLicense string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotLicense = r.Header.Get("X-License-ID")
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write(okResponseBody(t))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.ProcessMessage(context.Background(), messageBundle(t, fhir.EventPollRequest))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if gotPath != "/$process-message" {
		t.Errorf("path = %q", gotPath)
	}
	if gotContentType != "application/fhir+json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotLicense != "LIC-1" {
		t.Errorf("license header = %q", gotLicense)
	}
	header := resp.FindMessageHeader()
	if header == nil || header.Response.Code != fhir.ResponseCodeOK {
		t.Fatalf("unexpected response header: %+v", header)
	}
}

func TestProcessMessageRetriesOnceOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(okResponseBody(t))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.ProcessMessage(context.Background(), messageBundle(t, fhir.EventCommunication)); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestProcessMessageDoesNotRetryTwice(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ProcessMessage(context.Background(), messageBundle(t, fhir.EventCommunication))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", te.Status)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want exactly 2", got)
	}
}

func TestProcessMessageTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend exploded"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ProcessMessage(context.Background(), messageBundle(t, fhir.EventPollRequest))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Status != http.StatusInternalServerError || te.Body != "backend exploded" {
		t.Errorf("transport error = %+v", te)
	}
}

func TestProcessMessageMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not fhir</html>"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ProcessMessage(context.Background(), messageBundle(t, fhir.EventPollRequest))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Err == nil {
		t.Error("decode failure must carry the underlying error")
	}
}

func TestProcessMessageConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ProcessMessage(context.Background(), messageBundle(t, fhir.EventPollRequest))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("empty base URL must fail")
	}
}
