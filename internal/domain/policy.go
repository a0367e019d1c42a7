package domain

import "time"

// GrantEffect определяет, что делать с запросом данных
type GrantEffect string

const (
	EffectAllow GrantEffect = "ALLOW"
	EffectDeny  GrantEffect = "DENY"
)

// Grant: правило доступа агента к типу данных моста.
type Grant struct {
	AgentID   string      `json:"agent_id" mapstructure:"agent_id"`   // "*" для всех агентов
	DataType  string      `json:"data_type" mapstructure:"data_type"` // identity, communications-style, project-context...
	Effect    GrantEffect `json:"effect" mapstructure:"effect"`
	CreatedAt time.Time   `json:"created_at"`
}

// Decide гарантирует валидный эффект даже для пустого или битого правила (Zero Trust).
func (g *Grant) Decide() GrantEffect {
	if g == nil || g.Effect != EffectAllow {
		return EffectDeny
	}
	return EffectAllow
}
