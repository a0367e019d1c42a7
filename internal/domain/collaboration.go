package domain

import "time"

// CollaborationRequest: запрос одного агента к другому на совместную работу.
type CollaborationRequest struct {
	TaskDescription      string                 `json:"taskDescription"`
	ExpectedDeliverables []string               `json:"expectedDeliverables"`
	Timeline             string                 `json:"timeline"`
	MinimumConfidence    float64                `json:"minimumConfidence"`
	Context              map[string]interface{} `json:"context,omitempty"`
}

// CollaborationResponse: решение целевого агента.
type CollaborationResponse struct {
	Accepted            bool              `json:"accepted"`
	Reason              string            `json:"reason"`
	Alternatives        []AgentDescriptor `json:"alternatives,omitempty"`
	CapabilityGaps      []PreparationStep `json:"capabilityGaps,omitempty"`
	EstimatedCompletion *time.Time        `json:"estimatedCompletion,omitempty"`
}

// CollaborationEntry: одна запись журнала сотрудничества у одного из участников.
type CollaborationEntry struct {
	WithAgent string    `json:"withAgent"`
	TaskType  string    `json:"taskType"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}
