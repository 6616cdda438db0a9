package communication

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nphies/bridge/internal/platform/db"
)

type communicationRepoPG struct{ pool db.Querier }

func NewCommunicationRepoPG(pool db.Querier) CommunicationRepository {
	return &communicationRepoPG{pool: pool}
}

const commCols = `id, communication_id, nphies_communication_id, authorization_id,
	communication_type, based_on_request_id, category, priority, payloads, status,
	acknowledgment_received, acknowledgment_status, acknowledgment_at,
	request_bundle, response_bundle, acknowledgment_bundle, created_at, updated_at`

func (r *communicationRepoPG) scanRow(row pgx.Row) (*Communication, error) {
	var c Communication
	var payloads []byte
	err := row.Scan(&c.ID, &c.CommunicationID, &c.NPHIESCommunicationID, &c.AuthorizationID,
		&c.CommunicationType, &c.BasedOnRequestID, &c.Category, &c.Priority, &payloads, &c.Status,
		&c.AcknowledgmentReceived, &c.AcknowledgmentStatus, &c.AcknowledgmentAt,
		&c.RequestBundle, &c.ResponseBundle, &c.AcknowledgmentBundle, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(payloads) > 0 {
		if err := json.Unmarshal(payloads, &c.Payloads); err != nil {
			return nil, fmt.Errorf("decode payloads: %w", err)
		}
	}
	return &c, nil
}

func (r *communicationRepoPG) RecordSent(ctx context.Context, c *Communication) error {
	c.ID = uuid.New()
	if c.CommunicationID == "" {
		c.CommunicationID = c.ID.String()
	}
	payloads, err := json.Marshal(c.Payloads)
	if err != nil {
		return fmt.Errorf("encode payloads: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO communication (id, communication_id, nphies_communication_id, authorization_id,
			communication_type, based_on_request_id, category, priority, payloads, status,
			request_bundle, response_bundle)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.CommunicationID, c.NPHIESCommunicationID, c.AuthorizationID,
		c.CommunicationType, c.BasedOnRequestID, c.Category, c.Priority, payloads, c.Status,
		c.RequestBundle, c.ResponseBundle)
	return err
}

func (r *communicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Communication, error) {
	return r.scanRow(r.pool.QueryRow(ctx, `SELECT `+commCols+` FROM communication WHERE id = $1`, id))
}

func (r *communicationRepoPG) GetByCommunicationID(ctx context.Context, communicationID string) (*Communication, error) {
	return r.scanRow(r.pool.QueryRow(ctx,
		`SELECT `+commCols+` FROM communication WHERE communication_id = $1 OR nphies_communication_id = $1`,
		communicationID))
}

func (r *communicationRepoPG) ListByAuthorization(ctx context.Context, authorizationID uuid.UUID, limit, offset int) ([]*Communication, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM communication WHERE authorization_id = $1`, authorizationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+commCols+` FROM communication WHERE authorization_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		authorizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Communication
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

func (r *communicationRepoPG) MarkAcknowledged(ctx context.Context, communicationID, status string, bundle json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE communication
		SET acknowledgment_received = TRUE, acknowledgment_status = $2,
			acknowledgment_at = COALESCE(acknowledgment_at, NOW()),
			acknowledgment_bundle = $3, updated_at = NOW()
		WHERE communication_id = $1 OR nphies_communication_id = $1`,
		communicationID, status, bundle)
	return err
}

type communicationRequestRepoPG struct{ pool db.Querier }

func NewCommunicationRequestRepoPG(pool db.Querier) CommunicationRequestRepository {
	return &communicationRequestRepoPG{pool: pool}
}

const crCols = `id, request_id, authorization_id, payload_text,
	received_at, responded_at, raw_resource, created_at, updated_at`

func (r *communicationRequestRepoPG) scanRow(row pgx.Row) (*CommunicationRequest, error) {
	var cr CommunicationRequest
	err := row.Scan(&cr.ID, &cr.RequestID, &cr.AuthorizationID, &cr.PayloadText,
		&cr.ReceivedAt, &cr.RespondedAt, &cr.RawResource, &cr.CreatedAt, &cr.UpdatedAt)
	return &cr, err
}

// Upsert replaces the stored payload for a redelivered request id but never
// touches responded_at, so repeated poll delivery stays idempotent.
func (r *communicationRequestRepoPG) Upsert(ctx context.Context, cr *CommunicationRequest) error {
	if cr.ID == uuid.Nil {
		cr.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO communication_request (id, request_id, authorization_id, payload_text, received_at, raw_resource)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (request_id) DO UPDATE
		SET payload_text = EXCLUDED.payload_text,
			raw_resource = EXCLUDED.raw_resource,
			updated_at = NOW()`,
		cr.ID, cr.RequestID, cr.AuthorizationID, cr.PayloadText, cr.ReceivedAt, cr.RawResource)
	return err
}

func (r *communicationRequestRepoPG) GetByRequestID(ctx context.Context, requestID string) (*CommunicationRequest, error) {
	return r.scanRow(r.pool.QueryRow(ctx,
		`SELECT `+crCols+` FROM communication_request WHERE request_id = $1`, requestID))
}

func (r *communicationRequestRepoPG) FindUnresponded(ctx context.Context, authorizationID uuid.UUID) ([]*CommunicationRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+crCols+` FROM communication_request
		WHERE authorization_id = $1 AND responded_at IS NULL ORDER BY received_at`,
		authorizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CommunicationRequest
	for rows.Next() {
		cr, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cr)
	}
	return items, nil
}

func (r *communicationRequestRepoPG) ListByAuthorization(ctx context.Context, authorizationID uuid.UUID, limit, offset int) ([]*CommunicationRequest, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM communication_request WHERE authorization_id = $1`, authorizationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+crCols+` FROM communication_request WHERE authorization_id = $1 ORDER BY received_at DESC LIMIT $2 OFFSET $3`,
		authorizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CommunicationRequest
	for rows.Next() {
		cr, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cr)
	}
	return items, total, nil
}

// MarkResponded answers a request exactly once: a second call finds no
// unanswered row and reports the violation.
func (r *communicationRequestRepoPG) MarkResponded(ctx context.Context, requestID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE communication_request SET responded_at = NOW(), updated_at = NOW()
		WHERE request_id = $1 AND responded_at IS NULL`, requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("communication request %s not found or already responded", requestID)
	}
	return nil
}
