package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"searchgate.io/internal/model"
)

// IsValid reports whether the store has a connection. Store is a token Locator, Provider
// and Writer.
func (s *Store) IsValid() bool { return s != nil && s.db != nil }

func (s *Store) TokenByUUID(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		select payload from tokens where app_uuid = $1 and uuid = $2
	`, app.ComposeUUID(), uuid.ComposeUUID()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Transport("token lookup", err)
	}
	t, err := decodeToken(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) TokensByAppUUID(ctx context.Context, app model.AppUUID) ([]model.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		select payload from tokens where app_uuid = $1 order by uuid asc
	`, app.ComposeUUID())
	if err != nil {
		return nil, model.Transport("token list", err)
	}
	defer rows.Close()
	var out []model.Token
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := decodeToken(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PutToken inserts or replaces the whole token.
func (s *Store) PutToken(ctx context.Context, t model.Token) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into tokens (app_uuid, uuid, payload, updated_at)
		values ($1, $2, $3, now())
		on conflict (app_uuid, uuid) do update
		set payload = excluded.payload, updated_at = excluded.updated_at
	`, t.AppUUID.ComposeUUID(), t.UUID.ComposeUUID(), raw)
	return model.Transport("token put", err)
}

func (s *Store) DeleteToken(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) error {
	_, err := s.db.ExecContext(ctx, `delete from tokens where app_uuid = $1 and uuid = $2`,
		app.ComposeUUID(), uuid.ComposeUUID())
	return model.Transport("token delete", err)
}

func (s *Store) DeleteTokens(ctx context.Context, app model.AppUUID) error {
	_, err := s.db.ExecContext(ctx, `delete from tokens where app_uuid = $1`, app.ComposeUUID())
	return model.Transport("tokens delete", err)
}

func decodeToken(raw []byte) (model.Token, error) {
	var t model.Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%w: stored token: %v", model.ErrInvalidFormat, err)
	}
	return t, nil
}
