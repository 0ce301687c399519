package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"weft/internal/retrieval"
)

type Repository interface {
	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context, since *time.Time) ([]Chat, error)
	DeleteChat(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateChat(ctx context.Context, c *Chat) error {
	query := `INSERT INTO chats (id, title, created_at, updated_at) VALUES ($1, $2, $3, $3)`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Title, c.CreatedAt)
	return err
}

func (r *PostgresRepo) GetChat(ctx context.Context, id string) (*Chat, error) {
	c := &Chat{}
	query := `SELECT id, title, created_at, updated_at FROM chats WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepo) ListChats(ctx context.Context, since *time.Time) ([]Chat, error) {
	query := `SELECT id, title, created_at, updated_at FROM chats ORDER BY updated_at DESC`
	args := []interface{}{}
	if since != nil {
		query = `SELECT id, title, created_at, updated_at FROM chats WHERE updated_at >= $1 ORDER BY updated_at DESC`
		args = append(args, *since)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteChat(ctx context.Context, id string) error {
	// Messages go with it via ON DELETE CASCADE.
	query := `DELETE FROM chats WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) AppendMessage(ctx context.Context, m *Message) error {
	citations, err := json.Marshal(m.Citations)
	if err != nil {
		return err
	}
	query := `INSERT INTO messages (id, chat_id, role, content, citations, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.ChatID, m.Role, m.Content, citations, m.CreatedAt); err != nil {
		return err
	}
	touch := `UPDATE chats SET updated_at = $2 WHERE id = $1`
	_, err = r.db.ExecContext(ctx, touch, m.ChatID, m.CreatedAt)
	return err
}

func (r *PostgresRepo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	query := `SELECT id, chat_id, role, content, citations, created_at FROM messages WHERE chat_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var citations []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &citations, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(citations) > 0 {
			var srcs []retrieval.Source
			if err := json.Unmarshal(citations, &srcs); err == nil {
				m.Citations = srcs
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
