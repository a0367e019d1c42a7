package domain

import "time"

// CapabilityAssessment: оценка того, может ли агент выполнить задачу из запроса.
// Всегда полностью заполнена: отсутствующие поля получают значения по умолчанию.
type CapabilityAssessment struct {
	CanPerform               bool                      `json:"canPerform"`
	ConfidenceLevel          float64                   `json:"confidenceLevel"`
	RequiredPreparation      []PreparationStep         `json:"requiredPreparation"`
	EstimatedEffort          EffortEstimate            `json:"estimatedEffort"`
	RecommendedApproach      string                    `json:"recommendedApproach"`
	FallbackOptions          []FallbackOption          `json:"fallbackOptions"`
	CollaborationSuggestions []CollaborationSuggestion `json:"collaborationSuggestions"`
}

type PreparationStep struct {
	Step          string `json:"step"`
	EstimatedTime string `json:"estimatedTime"`
}

type EffortEstimate struct {
	Complexity      string   `json:"complexity"`
	TimeRequired    string   `json:"timeRequired"`
	ResourcesNeeded []string `json:"resourcesNeeded"`
}

type FallbackOption struct {
	Approach  string   `json:"approach"`
	Tradeoffs []string `json:"tradeoffs"`
}

type CollaborationSuggestion struct {
	WithAgent string   `json:"withAgent"`
	Approach  string   `json:"approach"`
	Benefits  []string `json:"benefits"`
}

// Skill: навык агента. Level в шкале 0..10.
type Skill struct {
	Name     string  `json:"name"`
	Level    float64 `json:"level"`
	Category string  `json:"category"`
}

type Learning struct {
	Topic      string    `json:"topic"`
	Date       time.Time `json:"date"`
	Confidence float64   `json:"confidence"`
}

type CapabilityGap struct {
	Area     string `json:"area"`
	Severity string `json:"severity"`
	Impact   string `json:"impact"`
}

type Enhancement struct {
	Area       string `json:"area"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}

type CollaborationReadiness struct {
	Score       float64  `json:"score"`
	Strengths   []string `json:"strengths"`
	Limitations []string `json:"limitations"`
}

// Источник анализа
const (
	AnalysisDurable  = "durable"
	AnalysisFallback = "fallback"
)

// CapabilityAnalysis: производное описание возможностей агента.
// Форма одинакова для durable-данных и для синтеза из abilities.
type CapabilityAnalysis struct {
	AgentID                 string                 `json:"agentId"`
	Source                  string                 `json:"source"`
	CurrentCapabilities     []Skill                `json:"currentCapabilities"`
	RecentLearnings         []Learning             `json:"recentLearnings"`
	KnowledgeGaps           []CapabilityGap        `json:"knowledgeGaps"`
	ConfidenceLevels        map[string]float64     `json:"confidenceLevels"`
	RecommendedEnhancements []Enhancement          `json:"recommendedEnhancements"`
	CollaborationReadiness  CollaborationReadiness `json:"collaborationReadiness"`
}

// AgentProfile: элемент агрегированного представления команды.
type AgentProfile struct {
	AgentID                string             `json:"agentId"`
	Name                   string             `json:"name"`
	Analysis               CapabilityAnalysis `json:"analysis"`
	CollaborationPotential float64            `json:"collaborationPotential"`
}

type TeamSynergy struct {
	Agents      []string `json:"agents"`
	SynergyType string   `json:"synergyType"`
	Potential   float64  `json:"potential"`
}

type TeamGap struct {
	Area     string   `json:"area"`
	Severity string   `json:"severity"`
	Agents   []string `json:"agents"`
}

type CollaborationPath struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// TeamCapabilityMatrix: сводная матрица возможностей всех агентов.
type TeamCapabilityMatrix struct {
	Agents                  []AgentProfile      `json:"agents"`
	Synergies               []TeamSynergy       `json:"synergies"`
	Gaps                    []TeamGap           `json:"gaps"`
	RecommendedEnhancements []Enhancement       `json:"recommendedEnhancements"`
	OptimalPaths            []CollaborationPath `json:"optimalPaths"`
}

// CapabilityEnhancement: предложение одного агента другому расширить навык.
type CapabilityEnhancement struct {
	Capability    string   `json:"capability"`
	Justification string   `json:"justification"`
	Urgency       string   `json:"urgency"` // low, medium, high
	Benefits      []string `json:"benefits"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

type ImplementationStep struct {
	Step     string `json:"step"`
	Duration string `json:"duration"`
}

type TeamImpact struct {
	Beneficiaries []string `json:"beneficiaries"`
	Risks         []string `json:"risks"`
	OverallImpact string   `json:"overallImpact"`
}

type EnhancementResponse struct {
	Feasible           bool                 `json:"feasible"`
	Reasoning          string               `json:"reasoning"`
	Prerequisites      []string             `json:"prerequisites"`
	ImplementationPlan []ImplementationStep `json:"implementationPlan"`
	ImpactOnTeam       TeamImpact           `json:"impactOnTeam"`
	ApprovalRequired   bool                 `json:"approvalRequired"`
}

// MultiAgentAssessment: результат опроса нескольких агентов об одной задаче.
type MultiAgentAssessment struct {
	Feasible        bool                            `json:"feasible"`
	Assessments     map[string]CapabilityAssessment `json:"assessments"`
	Bottlenecks     []string                        `json:"bottlenecks"`
	Recommendations []string                        `json:"recommendations"`
}

// TaskAllocationPlan: рекомендация, кому поручить задачу.
type TaskAllocationPlan struct {
	PrimaryAgent     string   `json:"primaryAgent"`
	SupportingAgents []string `json:"supportingAgents"`
	Confidence       float64  `json:"confidence"`
	Rationale        string   `json:"rationale"`
}
