package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// AuditRepo: журнал доступа моста в Postgres.
// timestamp: первичный ключ, поэтому дедупликация та же, что у файлового журнала.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch: пакетная вставка одним запросом. Совпавший timestamp молча пропускается.
func (r *AuditRepo) WriteBatch(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице access_audit
	const numFields = 5
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5)
		vals = append(vals, e.Timestamp, e.Action, e.Agent, e.DataType, e.Summary)
	}

	query := fmt.Sprintf(
		"INSERT INTO access_audit (ts, action, agent_id, data_type, summary) VALUES %s ON CONFLICT (ts) DO NOTHING",
		placeholders.String(),
	)
	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch: %w", err)
	}
	return nil
}

// Load: весь журнал по возрастанию времени (реализует audit.Store).
func (r *AuditRepo) Load(ctx context.Context) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT ts, action, agent_id, data_type, summary FROM access_audit ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load audit: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.Timestamp, &e.Action, &e.Agent, &e.DataType, &e.Summary); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save дописывает снимок: в таблице записи не удаляются, обрезка только в памяти.
func (r *AuditRepo) Save(ctx context.Context, entries []domain.AuditEntry) error {
	return r.WriteBatch(ctx, entries)
}
