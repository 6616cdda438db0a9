package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewMessageBundle(t *testing.T) {
	header := &MessageHeader{
		ResourceType: "MessageHeader",
		ID:           "hdr-1",
		EventCoding:  &Coding{System: NPHIESEventSystem, Code: EventPollRequest},
	}
	task := &Task{ResourceType: "Task", ID: "task-1", Status: "requested"}

	b, err := NewMessageBundle(header, task)
	if err != nil {
		t.Fatalf("NewMessageBundle: %v", err)
	}
	if b.Type != "message" {
		t.Errorf("type = %q, want message", b.Type)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("entries = %d, want 2", len(b.Entry))
	}
	if b.Entry[0].FullURL != "urn:uuid:hdr-1" {
		t.Errorf("header fullUrl = %q", b.Entry[0].FullURL)
	}

	var first Resource
	if err := json.Unmarshal(b.Entry[0].Resource, &first); err != nil {
		t.Fatalf("decode first entry: %v", err)
	}
	if first.ResourceType != "MessageHeader" {
		t.Errorf("first entry = %q, MessageHeader must lead", first.ResourceType)
	}
}

func TestFindMessageHeader(t *testing.T) {
	header := &MessageHeader{
		ResourceType: "MessageHeader",
		ID:           "hdr-1",
		Response:     &MessageHeaderResponse{Code: ResponseCodeQueued},
	}
	b, err := NewMessageBundle(header)
	if err != nil {
		t.Fatalf("NewMessageBundle: %v", err)
	}

	got := b.FindMessageHeader()
	if got == nil || got.Response == nil || got.Response.Code != ResponseCodeQueued {
		t.Fatalf("header = %+v", got)
	}

	empty := &Bundle{ResourceType: "Bundle", Type: "message"}
	if empty.FindMessageHeader() != nil {
		t.Error("empty bundle must have no header")
	}
}

func TestResourcesOfType(t *testing.T) {
	header := &MessageHeader{ResourceType: "MessageHeader", ID: "hdr-1"}
	b, err := NewMessageBundle(header,
		&Task{ResourceType: "Task", ID: "t-1"},
		&Task{ResourceType: "Task", ID: "t-2"},
		&ClaimResponseResource{ResourceType: "ClaimResponse", ID: "cr-1"},
	)
	if err != nil {
		t.Fatalf("NewMessageBundle: %v", err)
	}

	if got := len(b.ResourcesOfType("Task")); got != 2 {
		t.Errorf("tasks = %d, want 2", got)
	}
	if got := len(b.ResourcesOfType("ClaimResponse")); got != 1 {
		t.Errorf("claim responses = %d, want 1", got)
	}
	if got := len(b.ResourcesOfType("Patient")); got != 0 {
		t.Errorf("patients = %d, want 0", got)
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Claim", "abc"); got != "Claim/abc" {
		t.Errorf("FormatReference = %q", got)
	}
}
