package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
)

const wildcard = "*"

type GrantRepository interface {
	AllGrants(ctx context.Context) ([]domain.Grant, error)
}

// GrantWriter: репозиторий, который умеет сохранять правила (Postgres).
type GrantWriter interface {
	SaveGrant(ctx context.Context, g domain.Grant) error
}

// Policy: in-memory allow-list моста. В распределенной конфигурации синхронизируется
// с БД через Refresh, но решение о доступе принимается только по памяти.
type Policy struct {
	mu sync.RWMutex
	// Кэш: "agent_id:data_type" -> Grant
	grants map[string]domain.Grant

	repo   GrantRepository // может быть nil: только статичные правила из конфига
	static []domain.Grant
	pub    *redis.Client // может быть nil: изменения видит только этот инстанс
	logger *zap.Logger
}

func NewPolicy(static []domain.Grant, repo GrantRepository, logger *zap.Logger) *Policy {
	p := &Policy{
		grants: make(map[string]domain.Grant),
		repo:   repo,
		static: append([]domain.Grant(nil), static...),
		logger: logger.Named("policy"),
	}
	p.replace(nil)
	return p
}

func grantKey(agentID, dataType string) string {
	return agentID + ":" + dataType
}

// Decide: персональное правило, затем wildcard по агенту (*:dataType), затем по типу данных (agent:*), затем *:*.
// Если ничего не нашли, Default Deny (Zero Trust).
func (p *Policy) Decide(agentID, dataType string) domain.GrantEffect {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, key := range []string{
		grantKey(agentID, dataType),
		grantKey(wildcard, dataType),
		grantKey(agentID, wildcard),
		grantKey(wildcard, wildcard),
	} {
		if g, ok := p.grants[key]; ok {
			return g.Decide()
		}
	}
	return domain.EffectDeny
}

// Grants: снимок действующих правил.
func (p *Policy) Grants() []domain.Grant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Grant, 0, len(p.grants))
	for _, g := range p.grants {
		out = append(out, g)
	}
	return out
}

// Upsert меняет одно правило в памяти (событие из Pub/Sub).
func (p *Policy) Upsert(g domain.Grant) {
	if g.AgentID == "" || g.DataType == "" {
		return
	}
	p.mu.Lock()
	p.grants[grantKey(g.AgentID, g.DataType)] = g
	p.mu.Unlock()
}

// SetPublisher включает рассылку изменений другим инстансам.
func (p *Policy) SetPublisher(rdb *redis.Client) {
	p.mu.Lock()
	p.pub = rdb
	p.mu.Unlock()
}

// Put применяет административное изменение правила: БД, затем память, затем сигнал остальным.
func (p *Policy) Put(ctx context.Context, g domain.Grant) error {
	if g.AgentID == "" || g.DataType == "" {
		return fmt.Errorf("bridge: grant needs agentId and dataType")
	}
	g.Effect = g.Decide()

	if w, ok := p.repo.(GrantWriter); ok {
		if err := w.SaveGrant(ctx, g); err != nil {
			return err
		}
	}
	p.Upsert(g)

	p.mu.RLock()
	rdb := p.pub
	p.mu.RUnlock()
	if rdb == nil {
		return nil
	}
	if err := PublishGrant(ctx, rdb, g); err != nil {
		// Локально правило уже действует, остальные подтянут его на Refresh
		p.logger.Warn("grant publish failed", zap.String("agent_id", g.AgentID), zap.Error(err))
	}
	return nil
}

// Refresh: холодная загрузка правил из БД поверх статичных из конфига.
func (p *Policy) Refresh(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}
	fromDB, err := p.repo.AllGrants(ctx)
	if err != nil {
		return err
	}
	p.replace(fromDB)
	return nil
}

func (p *Policy) replace(dynamic []domain.Grant) {
	next := make(map[string]domain.Grant, len(p.static)+len(dynamic))
	for _, g := range p.static {
		next[grantKey(g.AgentID, g.DataType)] = g
	}
	for _, g := range dynamic {
		next[grantKey(g.AgentID, g.DataType)] = g
	}

	p.mu.Lock()
	p.grants = next
	p.mu.Unlock()

	p.logger.Info("grant cache refreshed", zap.Int("count", len(next)))
}

// ListenUpdates держит подписку на изменения allow-list.
// Payload с правилом применяется точечно, пустой или битый, полной перезагрузкой.
func (p *Policy) ListenUpdates(ctx context.Context, rdb *redis.Client) {
	infra.ListenResilient(ctx, rdb, p.logger, infra.RedisChanGrantUpdate,
		func() error { return p.Refresh(ctx) },
		func(payload string) {
			var g domain.Grant
			if err := json.Unmarshal([]byte(payload), &g); err == nil && g.AgentID != "" {
				p.Upsert(g)
				p.logger.Info("grant updated", zap.String("agent_id", g.AgentID), zap.String("data_type", g.DataType), zap.String("effect", string(g.Effect)))
				return
			}
			if err := p.Refresh(ctx); err != nil {
				p.logger.Error("grant refresh failed", zap.Error(err))
			}
		})
}

// PublishGrant оповещает все инстансы об измененном правиле.
func PublishGrant(ctx context.Context, rdb *redis.Client, g domain.Grant) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, infra.RedisChanGrantUpdate, raw).Err()
}
