package killswitch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// warmup заливает начальный набор в пустой Redis set.
// Прогревает только один инстанс: остальные уходят на SetNX-блокировке.
func warmup(ctx context.Context, rdb *redis.Client, logger *zap.Logger, ids []string, key, lockKey string) error {
	if len(ids) == 0 {
		return nil
	}

	// 1. Распределенная блокировка
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет
	}

	// 2. Проверка наполненности
	count, err := rdb.SCard(ctx, key).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", key), zap.Error(err))
	}
	if count > 0 {
		return nil
	}

	// 3. Set пуст, заливаем одним пайплайном
	logger.Info("blocked set is empty, seeding from config",
		zap.String("key", key), zap.Int("count", len(ids)))
	pipe := rdb.Pipeline()
	for _, id := range ids {
		pipe.SAdd(ctx, key, id)
	}
	_, err = pipe.Exec(ctx)
	return err
}
