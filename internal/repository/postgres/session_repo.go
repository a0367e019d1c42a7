package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/interaction"
)

// SessionRepo реализует interaction.Store поверх Postgres. Снимок сессии в JSONB
// плюс отдельная таблица итогов вместо session-summaries.jsonl.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// SaveSession: upsert полного снимка.
func (r *SessionRepo) SaveSession(ctx context.Context, s *domain.ChatSession) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("postgres: encode session %s: %w", s.SessionID, err)
	}

	query := `
		INSERT INTO chat_sessions (session_id, user_id, status, start_time, end_time, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET status = EXCLUDED.status, end_time = EXCLUDED.end_time, snapshot = EXCLUDED.snapshot, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, s.SessionID, s.UserID, string(s.Status), s.StartTime, s.EndTime, snapshot); err != nil {
		return fmt.Errorf("postgres: save session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *SessionRepo) LoadSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT snapshot FROM chat_sessions WHERE session_id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interaction.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres: load session %s: %w", id, err)
	}

	var s domain.ChatSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("postgres: decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *SessionRepo) AppendSummary(ctx context.Context, sum domain.SessionSummary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	query := `INSERT INTO session_summaries (log_id, session_id, created_at, summary) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, query, sum.LogID, sum.SessionID, sum.CreatedAt, raw); err != nil {
		return fmt.Errorf("postgres: append summary %s: %w", sum.SessionID, err)
	}
	return nil
}

func (r *SessionRepo) RecentSummaries(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `SELECT summary FROM session_summaries ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SessionSummary, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var sum domain.SessionSummary
		if err := json.Unmarshal(raw, &sum); err != nil {
			continue // битая запись не прячет остальные
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Locate: логический адрес снимка и его размер в байтах.
func (r *SessionRepo) Locate(ctx context.Context, id string) (string, int64) {
	var size int64
	err := r.pool.QueryRow(ctx, `SELECT octet_length(snapshot::text) FROM chat_sessions WHERE session_id = $1`, id).Scan(&size)
	if err != nil {
		return "", 0
	}
	return "postgres://chat_sessions/" + id, size
}
