package authorization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nphies/bridge/internal/platform/db"
)

type requestRepoPG struct{ pool db.Querier }

func NewRequestRepoPG(pool db.Querier) RequestRepository {
	return &requestRepoPG{pool: pool}
}

const reqCols = `id, fhir_id, kind, patient_name, member_id,
	provider_id, payer_id, status, outcome, disposition, pre_auth_ref,
	request_bundle, response_bundle, created_at, updated_at`

func (r *requestRepoPG) scanRow(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.FHIRID, &req.Kind, &req.PatientName, &req.MemberID,
		&req.ProviderID, &req.PayerID, &req.Status, &req.Outcome, &req.Disposition,
		&req.PreAuthRef, &req.RequestBundle, &req.ResponseBundle,
		&req.CreatedAt, &req.UpdatedAt)
	return &req, err
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	if req.FHIRID == "" {
		req.FHIRID = req.ID.String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO authorization_request (id, fhir_id, kind, patient_name, member_id,
			provider_id, payer_id, status, outcome, disposition, pre_auth_ref,
			request_bundle, response_bundle)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		req.ID, req.FHIRID, req.Kind, req.PatientName, req.MemberID,
		req.ProviderID, req.PayerID, req.Status, req.Outcome, req.Disposition,
		req.PreAuthRef, req.RequestBundle, req.ResponseBundle)
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := r.scanRow(r.pool.QueryRow(ctx, `SELECT `+reqCols+` FROM authorization_request WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *requestRepoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Request, error) {
	req, err := r.scanRow(r.pool.QueryRow(ctx, `SELECT `+reqCols+` FROM authorization_request WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *requestRepoPG) Update(ctx context.Context, req *Request) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE authorization_request SET status=$2, outcome=$3, disposition=$4,
			pre_auth_ref=$5, request_bundle=$6, response_bundle=$7, updated_at=NOW()
		WHERE id = $1`,
		req.ID, req.Status, req.Outcome, req.Disposition,
		req.PreAuthRef, req.RequestBundle, req.ResponseBundle)
	return err
}

func (r *requestRepoPG) List(ctx context.Context, kind string, limit, offset int) ([]*Request, int, error) {
	where := ""
	args := []interface{}{}
	if kind != "" {
		where = " WHERE kind = $1"
		args = append(args, kind)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM authorization_request`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reqCols + ` FROM authorization_request` + where
	if kind != "" {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, nil
}
