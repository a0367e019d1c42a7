package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
)

// ErrNoData: для типа данных у персоны ничего нет.
var ErrNoData = errors.New("bridge: no data")

// Source: откуда мост берет данные персоны.
type Source interface {
	Fetch(ctx context.Context, dataType string) (map[string]string, error)
}

// StaticSource: данные прямо из конфига (bridge.data).
type StaticSource map[string]map[string]string

func (s StaticSource) Fetch(_ context.Context, dataType string) (map[string]string, error) {
	data, ok := s[dataType]
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, dataType)
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out, nil
}

// RedisSource: hash на тип данных, общий для всех инстансов.
type RedisSource struct {
	rdb *redis.Client
}

func NewRedisSource(rdb *redis.Client) *RedisSource {
	return &RedisSource{rdb: rdb}
}

func (s *RedisSource) Fetch(ctx context.Context, dataType string) (map[string]string, error) {
	data, err := s.rdb.HGetAll(ctx, infra.PersonaDataKey(dataType)).Result()
	if err != nil {
		return nil, fmt.Errorf("bridge: redis fetch %s: %w", dataType, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, dataType)
	}
	return data, nil
}

// Put записывает данные персоны (команда agentmesh persona-set).
func (s *RedisSource) Put(ctx context.Context, dataType string, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(data))
	for k, v := range data {
		fields[k] = v
	}
	return s.rdb.HSet(ctx, infra.PersonaDataKey(dataType), fields).Err()
}

// Chain опрашивает источники по порядку. Первый, у кого есть данные, побеждает;
// любая ошибка кроме ErrNoData прерывает обход.
type Chain []Source

func (c Chain) Fetch(ctx context.Context, dataType string) (map[string]string, error) {
	for _, src := range c {
		data, err := src.Fetch(ctx, dataType)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNoData) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoData, dataType)
}
