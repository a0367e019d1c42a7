package domain

import "time"

// Статусы сессии. completed терминальный.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Статусы взаимодействия. completed и failed терминальные.
type InteractionStatus string

const (
	InteractionAssigned  InteractionStatus = "assigned"
	InteractionCompleted InteractionStatus = "completed"
	InteractionFailed    InteractionStatus = "failed"
)

// Тип оркестрации выводится из числа задействованных агентов
const (
	OrchestrationDirect  = "direct"
	OrchestrationSimple  = "simple"
	OrchestrationComplex = "complex"
)

// Роль агента во взаимодействии
const (
	AgentTypeManagement = "management"
	AgentTypeSpecialist = "specialist"
	AgentTypeSupport    = "support"
)

// ChatSession: аудит одного пользовательского запроса.
// Хранилище всегда получает полный снимок, а не дифф.
type ChatSession struct {
	SessionID      string     `json:"sessionId"`
	ChatID         string     `json:"chatId"`
	UserID         string     `json:"userId"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	UserRequest    string     `json:"userRequest"`
	RequestSummary string     `json:"requestSummary"`

	OrchestrationType          string `json:"orchestrationType"`
	MasterOrchestratorInvolved bool   `json:"masterOrchestratorInvolved"`

	AgentsInvolved       []string      `json:"agentsInvolved"`
	TotalInteractions    int           `json:"totalInteractions"`
	TotalExecutionTimeMs int64         `json:"totalExecutionTimeMs"`
	Status               SessionStatus `json:"sessionStatus"`

	FinalResponse    string   `json:"finalResponse"`
	Deliverables     []string `json:"deliverables"`
	UserSatisfaction *int     `json:"userSatisfaction,omitempty"`

	Interactions []*Interaction `json:"interactions"`
}

// Interaction: один вызов агента в рамках сессии.
type Interaction struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	SessionID      string    `json:"sessionId"`
	ChatID         string    `json:"chatId"`
	SequenceNumber int       `json:"sequenceNumber"` // 1..N без пропусков

	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	AgentType string `json:"agentType"`

	TaskAssigned   string `json:"taskAssigned"`
	TaskSummary    string `json:"taskSummary"`
	TaskPriority   string `json:"taskPriority"`
	TaskComplexity string `json:"taskComplexity"`

	InputReceived  string `json:"inputReceived"`
	OutputProduced string `json:"outputProduced"`
	OutputSummary  string `json:"outputSummary"`

	ExecutionTimeMs int64             `json:"executionTimeMs"`
	Status          InteractionStatus `json:"status"`
	Success         bool              `json:"success"`
	AssignedBy      string            `json:"assignedBy"`
}

// InteractionMeta: необязательные атрибуты при регистрации взаимодействия.
type InteractionMeta struct {
	AgentName  string
	AgentType  string
	Priority   string
	Complexity string
	AssignedBy string
}

// SessionSummary: строка append-only журнала итогов сессий.
type SessionSummary struct {
	LogID             string         `json:"logId"`
	SessionID         string         `json:"sessionId"`
	ChatID            string         `json:"chatId"`
	CreatedAt         time.Time      `json:"createdAt"`
	TotalInteractions int            `json:"totalInteractions"`
	SessionDurationMs int64          `json:"sessionDurationMs"`
	AgentBreakdown    map[string]int `json:"agentBreakdown"`
	LogFilePath       string         `json:"logFilePath,omitempty"`
	FileSize          int64          `json:"fileSize"`
	Status            string         `json:"status"`
}
