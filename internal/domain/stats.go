package domain

import "time"

// InteractionStats: агрегированная статистика по сессиям за период.
type InteractionStats struct {
	PeriodStart                   time.Time    `json:"periodStart"`
	PeriodEnd                     time.Time    `json:"periodEnd"`
	TotalSessions                 int          `json:"totalSessions"`
	TotalInteractions             int          `json:"totalInteractions"`
	TotalAgentsUsed               int          `json:"totalAgentsUsed"`
	AverageSessionDurationMs      float64      `json:"averageSessionDuration"`
	AverageInteractionsPerSession float64      `json:"averageInteractionsPerSession"`
	SuccessRate                   float64      `json:"successRate"` // проценты
	MostUsedAgents                []AgentUsage `json:"mostUsedAgents"`
	CommonTaskTypes               []TaskUsage  `json:"commonTaskTypes"`
}

type AgentUsage struct {
	AgentID     string  `json:"agentId"`
	AgentName   string  `json:"agentName"`
	UsageCount  int     `json:"usageCount"`
	SuccessRate float64 `json:"successRate"`
}

type TaskUsage struct {
	TaskType          string `json:"taskType"`
	Frequency         int    `json:"frequency"`
	AverageComplexity string `json:"averageComplexity"`
}
