package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/kaleow/omnichat/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	stmt := `INSERT INTO message (uid, conversation_id, role, content, type, image_url, model, created_ts, edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.ConversationID, create.Role, create.Content, create.Type,
		create.ImageURL, create.Model, create.CreatedTs, create.Edited,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}

	query := `SELECT id, uid, conversation_id, role, content, type, image_url, model, created_ts, edited
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.Role, &m.Content, &m.Type,
			&m.ImageURL, &m.Model, &m.CreatedTs, &m.Edited); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	set, args := []string{}, []any{}

	if update.Content != nil {
		set, args = append(set, "content = ?"), append(args, *update.Content)
	}
	if update.Edited != nil {
		set, args = append(set, "edited = ?"), append(args, *update.Edited)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE message SET ` + strings.Join(set, ", ") + ` WHERE id = ?
		RETURNING id, uid, conversation_id, role, content, type, image_url, model, created_ts, edited`
	result := &store.Message{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.ConversationID, &result.Role, &result.Content, &result.Type,
		&result.ImageURL, &result.Model, &result.CreatedTs, &result.Edited,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("message not found")
		}
		return nil, errors.Wrap(err, "failed to update message")
	}
	return result, nil
}

func (d *DB) DeleteMessage(ctx context.Context, delete *store.DeleteMessage) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM message WHERE id = ?`, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete message")
	}
	return nil
}

func (d *DB) DeleteMessagesAfter(ctx context.Context, conversationID int32, afterID int32) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM message WHERE conversation_id = ? AND id > ?`, conversationID, afterID); err != nil {
		return errors.Wrap(err, "failed to delete trailing messages")
	}
	return nil
}
