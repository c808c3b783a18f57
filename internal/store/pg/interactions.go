package pg

import (
	"context"
	"time"

	"searchgate.io/internal/model"
)

func (s *Store) AddInteraction(ctx context.Context, app model.AppUUID, in model.Interaction) error {
	when := in.OccurredOn
	if when.IsZero() {
		when = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into interactions (app_uuid, user_id, item_uuid, weight, occurred_on)
		values ($1, $2, $3, $4, $5)
	`, app.ComposeUUID(), in.User, in.Item.ComposeUUID(), in.Weight, when)
	return model.Transport("interaction insert", err)
}

func (s *Store) DeleteAllInteractions(ctx context.Context, app model.AppUUID) error {
	_, err := s.db.ExecContext(ctx, `delete from interactions where app_uuid = $1`, app.ComposeUUID())
	return model.Transport("interactions delete", err)
}
