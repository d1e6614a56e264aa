package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/userbot-server-go/internal/database"
	"github.com/openclaw/userbot-server-go/internal/model"
)

type AuthEventRepository interface {
	Create(ctx context.Context, params model.CreateAuthEventParams) (*model.AuthEvent, error)
	FindByID(ctx context.Context, id string) (*model.AuthEvent, error)
	FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.AuthEvent, error)
	FindRecent(ctx context.Context, limit, offset int) ([]model.AuthEvent, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type authEventRepo struct {
	db database.DBTX
}

func NewAuthEventRepository(db *sqlx.DB) AuthEventRepository {
	return &authEventRepo{db: db}
}

func (r *authEventRepo) Create(ctx context.Context, params model.CreateAuthEventParams) (*model.AuthEvent, error) {
	var event model.AuthEvent
	err := r.db.GetContext(ctx, &event, `
		INSERT INTO auth_events (id, session_id, event_type, phone_masked, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.ID, params.SessionID, params.Type, params.Phone, params.Reason, params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *authEventRepo) FindByID(ctx context.Context, id string) (*model.AuthEvent, error) {
	var event model.AuthEvent
	err := r.db.GetContext(ctx, &event, `SELECT * FROM auth_events WHERE id = $1`, id)
	return HandleNotFound(&event, err)
}

func (r *authEventRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.AuthEvent, error) {
	events := []model.AuthEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM auth_events
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *authEventRepo) FindRecent(ctx context.Context, limit, offset int) ([]model.AuthEvent, error) {
	events := []model.AuthEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM auth_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *authEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_events WHERE created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
