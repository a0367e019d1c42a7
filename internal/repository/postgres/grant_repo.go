package postgres

/*
Файл grant_repo.go отвечает за хранение allow-list моста данных.
Долговременное хранение правил в PostgreSQL отделено от их проверки в памяти (bridge.Policy).
*/

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

type GrantRepo struct {
	pool *pgxpool.Pool
}

func NewGrantRepo(pool *pgxpool.Pool) *GrantRepo {
	return &GrantRepo{pool: pool}
}

// AllGrants выполняет "холодную загрузку" всего набора правил при старте и по сигналу.
func (r *GrantRepo) AllGrants(ctx context.Context) ([]domain.Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT agent_id, data_type, effect, created_at FROM bridge_grants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Grant
	for rows.Next() {
		var g domain.Grant
		var effect string
		if err := rows.Scan(&g.AgentID, &g.DataType, &effect, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Effect = domain.GrantEffect(effect)
		results = append(results, g)
	}
	return results, rows.Err()
}

// SaveGrant создает или меняет правило. agent_id = '*' задает глобальное правило.
func (r *GrantRepo) SaveGrant(ctx context.Context, g domain.Grant) error {
	query := `
		INSERT INTO bridge_grants (agent_id, data_type, effect)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, data_type) DO UPDATE SET effect = EXCLUDED.effect`

	if _, err := r.pool.Exec(ctx, query, g.AgentID, g.DataType, string(g.Decide())); err != nil {
		return fmt.Errorf("postgres: failed to save grant: %w", err)
	}
	return nil
}

// DeleteGrant удаляет правило. После удаления пара снова под Default Deny.
func (r *GrantRepo) DeleteGrant(ctx context.Context, agentID, dataType string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM bridge_grants WHERE agent_id = $1 AND data_type = $2`, agentID, dataType)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete grant: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: grant not found")
	}
	return nil
}
