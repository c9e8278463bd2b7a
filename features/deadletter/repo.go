package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Save(ctx context.Context, msg *Message) error
	List(ctx context.Context) ([]Message, error)
	Get(ctx context.Context, id string) (*Message, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, msg *Message) error {
	query := `INSERT INTO failed_messages (topic, stage, payload, reason, attempts) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, msg.Topic, msg.Stage, []byte(msg.Payload), msg.Reason, msg.Attempts).
		Scan(&msg.ID, &msg.CreatedAt)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Message, error) {
	query := `SELECT id, topic, stage, payload, reason, attempts, created_at FROM failed_messages ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var payload []byte
		if err := rows.Scan(&m.ID, &m.Topic, &m.Stage, &payload, &m.Reason, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Message, error) {
	m := &Message{}
	var payload []byte
	query := `SELECT id, topic, stage, payload, reason, attempts, created_at FROM failed_messages WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Topic, &m.Stage, &payload, &m.Reason, &m.Attempts, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Payload = json.RawMessage(payload)
	return m, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM failed_messages WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM failed_messages`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
