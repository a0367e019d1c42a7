package domain

import "time"

// OrchestrationPlan решение оркестратора о том, какие агенты участвуют.
// Программно используется только Agents, остальное справочный текст.
type OrchestrationPlan struct {
	PlanText     string   `json:"planText"`
	Agents       []string `json:"agents"`
	Timeline     string   `json:"timeline"`
	Dependencies []string `json:"dependencies"`
	Steps        []string `json:"steps"`
	Risks        []string `json:"risks"`
}

// Статусы результата оркестрации
const (
	OrchestrationCompleted       = "completed"
	OrchestrationPartiallyFailed = "partially-failed"
	OrchestrationPlanFailed      = "plan-failed"
)

// OrchestrationResult: итог обработки одного пользовательского запроса.
type OrchestrationResult struct {
	Status             string             `json:"status"`
	SessionID          string             `json:"sessionId,omitempty"`
	ExecutedAgents     []string           `json:"executedAgents"`
	FailedAgents       []string           `json:"failedAgents,omitempty"`
	Results            string             `json:"results"`
	Plan               *OrchestrationPlan `json:"plan,omitempty"`
	Error              string             `json:"error,omitempty"`
	TotalExecutionTime time.Duration      `json:"totalExecutionTime"`
}
