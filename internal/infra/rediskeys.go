package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "agentmesh"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanCapabilityInvalidate: сброс агрегированного кэша возможностей на всех инстансах.
	RedisChanCapabilityInvalidate = RedisNamespace + ":capabilities:invalidate"
	// RedisChanGrantUpdate: изменение allow-list моста данных.
	RedisChanGrantUpdate = RedisNamespace + ":bridge:grant-update"
	// RedisChanKillSwitch: блокировка/разблокировка агента, payload "agentID:on" | "agentID:off".
	RedisChanKillSwitch = RedisNamespace + ":agents:kill-switch"
)

// Ключи состояния
const (
	// RedisKeyBlockedAgents: set заблокированных агентов (источник истины для новых инстансов).
	RedisKeyBlockedAgents = RedisNamespace + ":agents:blocked_set"
	// RedisKeyLockBlocked: распределенная блокировка прогрева RedisKeyBlockedAgents.
	RedisKeyLockBlocked = RedisNamespace + ":lock:warmup:blocked"
)

// PersonaDataKey: hash с данными персоны определенного типа (identity, project-context...)
func PersonaDataKey(dataType string) string {
	return fmt.Sprintf("%s:persona:%s", RedisNamespace, dataType)
}
