package domain

// AgentDescriptor: статическое описание агента в каталоге.
// Создается при discovery и не меняется до следующего пересканирования.
type AgentDescriptor struct {
	ID          string   `json:"id" yaml:"id"`     // kebab-case, уникальный
	Name        string   `json:"name" yaml:"name"` // Человекочитаемое имя
	Description string   `json:"description" yaml:"description"`
	Abilities   []string `json:"abilities" yaml:"abilities"` // Порядок важен (дайджест берет первые две)

	// Откуда взялась реализация: встроенный тип или удаленный gRPC-агент
	Kind     string `json:"kind,omitempty" yaml:"kind"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint"`
}

// Типы задач единого контракта агента
const (
	TaskExecute              = "execute-task"
	TaskOrchestrate          = "orchestrate"
	TaskPlan                 = "plan"
	TaskGetAgentCapabilities = "get-agent-capabilities"
	TaskCountAgents          = "count-agents"
	TaskElevatorPitch        = "elevator-pitch"
)

// Task: единый вход агента. Payload непрозрачен для ядра,
// кроме userRequest и контекстных полей, которые прокидываются насквозь.
type Task struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// TaskResult: единый выход агента.
type TaskResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PayloadString безопасно достает строковое поле из payload.
func (t Task) PayloadString(key string) string {
	if t.Payload == nil {
		return ""
	}
	if s, ok := t.Payload[key].(string); ok {
		return s
	}
	return ""
}

// Failed: короткий конструктор неуспешного результата.
func Failed(err string) TaskResult {
	return TaskResult{Success: false, Error: err}
}

// Succeeded: короткий конструктор успешного результата.
func Succeeded(result interface{}) TaskResult {
	return TaskResult{Success: true, Result: result}
}
