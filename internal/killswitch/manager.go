package killswitch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
)

const (
	signalOn  = ":on"
	signalOff = ":off"
)

// Manager: kill-switch агентов. Заблокированный агент не получает задач:
// каталог не выдает его инстанс ни оркестратору, ни gRPC-серверу.
// Без Redis работает локально в пределах процесса.
type Manager struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewManager(rdb *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		blocked: make(map[string]struct{}),
		rdb:     rdb,
		logger:  logger.Named("kill-switch"),
	}
}

// Init загружает текущее состояние блокировок при старте.
// seed: блокировки из конфига, попадают в Redis только если set еще пуст.
func (m *Manager) Init(ctx context.Context, seed []string) error {
	m.replace(seed)
	if m.rdb == nil {
		return nil
	}
	if err := warmup(ctx, m.rdb, m.logger, seed, infra.RedisKeyBlockedAgents, infra.RedisKeyLockBlocked); err != nil {
		return fmt.Errorf("killswitch: warmup: %w", err)
	}
	return m.sync(ctx)
}

// sync перечитывает set целиком. Нужен после переподключения: сигналы за время разрыва потеряны.
func (m *Manager) sync(ctx context.Context) error {
	ids, err := m.rdb.SMembers(ctx, infra.RedisKeyBlockedAgents).Result()
	if err != nil {
		return fmt.Errorf("killswitch: load blocked set: %w", err)
	}
	m.replace(ids)
	return nil
}

func (m *Manager) replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	m.mu.Lock()
	m.blocked = next
	m.mu.Unlock()
}

// StartListener подписывается на сигналы других инстансов. Блокирует до отмены ctx.
func (m *Manager) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	m.logger.Info("kill-switch listener started")
	infra.ListenResilient(ctx, m.rdb, m.logger, infra.RedisChanKillSwitch,
		func() error { return m.sync(ctx) },
		m.processSignal,
	)
}

// processSignal разбирает "agentID:on" / "agentID:off".
func (m *Manager) processSignal(payload string) {
	if id, ok := strings.CutSuffix(payload, signalOn); ok && id != "" {
		m.mark(id, true)
		m.logger.Warn("received kill signal", zap.String("agent_id", id))
		return
	}
	if id, ok := strings.CutSuffix(payload, signalOff); ok && id != "" {
		m.mark(id, false)
		m.logger.Info("agent unblocked", zap.String("agent_id", id))
		return
	}
	m.logger.Warn("malformed kill-switch signal", zap.String("payload", payload))
}

func (m *Manager) mark(id string, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blocked {
		m.blocked[id] = struct{}{}
	} else {
		delete(m.blocked, id)
	}
}

// Block мгновенно блокирует агента локально, затем фиксирует в Redis и оповещает остальных.
func (m *Manager) Block(ctx context.Context, agentID string) error {
	return m.set(ctx, agentID, true)
}

func (m *Manager) Unblock(ctx context.Context, agentID string) error {
	return m.set(ctx, agentID, false)
}

func (m *Manager) set(ctx context.Context, agentID string, blocked bool) error {
	if agentID == "" {
		return fmt.Errorf("killswitch: agent id is required")
	}
	m.mark(agentID, blocked)
	if m.rdb == nil {
		return nil
	}

	// Set и сигнал одной транзакцией: новый инстанс не увидит сигнал без записи в set
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if blocked {
			pipe.SAdd(ctx, infra.RedisKeyBlockedAgents, agentID)
			pipe.Publish(ctx, infra.RedisChanKillSwitch, agentID+signalOn)
		} else {
			pipe.SRem(ctx, infra.RedisKeyBlockedAgents, agentID)
			pipe.Publish(ctx, infra.RedisChanKillSwitch, agentID+signalOff)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("killswitch: publish %s: %w", agentID, err)
	}
	return nil
}

// IsBlocked: горячий путь, только чтение локальной мапы.
func (m *Manager) IsBlocked(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocked[agentID]
	return ok
}

// Blocked: отсортированный список заблокированных.
func (m *Manager) Blocked() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.blocked))
	for id := range m.blocked {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}
