package capability

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
)

// ListenInvalidations сбрасывает кэши по сигналу других инстансов.
// После переподключения кэш сбрасывается безусловно: сигналы могли быть пропущены.
func ListenInvalidations(ctx context.Context, rdb *redis.Client, in *Inspector, logger *zap.Logger) {
	logger = logger.With(zap.String("mod", "capability-invalidator"))
	infra.ListenResilient(ctx, rdb, logger, infra.RedisChanCapabilityInvalidate,
		func() error {
			in.Invalidate()
			return nil
		},
		func(payload string) {
			logger.Info("capability invalidation received", zap.String("agent_id", payload))
			in.Invalidate()
		},
	)
}

// PublishInvalidation оповещает остальные инстансы об изменении состава.
func PublishInvalidation(ctx context.Context, rdb *redis.Client, agentID string) error {
	return rdb.Publish(ctx, infra.RedisChanCapabilityInvalidate, agentID).Err()
}
