package communication

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestCommRequestUpsertNilPayloadText(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewCommunicationRequestRepoPG(mock)
	authID := uuid.New()
	received := time.Now().UTC()
	raw := json.RawMessage(`{"resourceType":"CommunicationRequest","id":"cr-1"}`)

	// A request without text payloads stores NULL, not an empty string.
	mock.ExpectExec("INSERT INTO communication_request").
		WithArgs(pgxmock.AnyArg(), "REQ-1", authID, (*string)(nil), received, raw).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Upsert(context.Background(), &CommunicationRequest{
		RequestID:       "REQ-1",
		AuthorizationID: authID,
		ReceivedAt:      received,
		RawResource:     raw,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommRequestMarkRespondedOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewCommunicationRequestRepoPG(mock)

	mock.ExpectExec("UPDATE communication_request").
		WithArgs("REQ-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.MarkResponded(context.Background(), "REQ-1"); err != nil {
		t.Fatalf("first MarkResponded: %v", err)
	}

	// The guarded update touches no row the second time, which the repo
	// reports as an error.
	mock.ExpectExec("UPDATE communication_request").
		WithArgs("REQ-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := repo.MarkResponded(context.Background(), "REQ-1"); err == nil {
		t.Fatal("second MarkResponded must fail")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
