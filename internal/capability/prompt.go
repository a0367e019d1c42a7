package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// workspace: что известно о рабочем каталоге агента.
type workspace struct {
	Present      bool
	LastModified string
}

func assessmentPrompt(desc domain.AgentDescriptor, a domain.CapabilityAnalysis, ws workspace, recent []domain.CollaborationEntry, query, requesting string) string {
	skills := make([]string, 0, len(a.CurrentCapabilities))
	for _, s := range a.CurrentCapabilities {
		skills = append(skills, fmt.Sprintf("%s (level %g)", s.Name, s.Level))
	}
	learnings := make([]string, 0, len(a.RecentLearnings))
	for _, l := range a.RecentLearnings {
		learnings = append(learnings, l.Topic)
	}
	gaps := make([]string, 0, len(a.KnowledgeGaps))
	for _, g := range a.KnowledgeGaps {
		gaps = append(gaps, g.Area)
	}
	partners := make([]string, 0, len(recent))
	for _, e := range recent {
		partners = append(partners, fmt.Sprintf("%s (%s)", e.WithAgent, e.TaskType))
	}

	wsLine := "not provisioned"
	if ws.Present {
		wsLine = "present, last modified " + ws.LastModified
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing whether agent %q (ID: %s) can handle a specific capability request.\n\n", desc.Name, desc.ID)
	b.WriteString("Agent Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n", desc.Name)
	fmt.Fprintf(&b, "- Description: %s\n", desc.Description)
	fmt.Fprintf(&b, "- Declared Abilities: %s\n\n", strings.Join(desc.Abilities, ", "))
	b.WriteString("Current Capabilities Analysis:\n")
	fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(skills, ", "))
	fmt.Fprintf(&b, "- Recent Learnings: %s\n", strings.Join(learnings, ", "))
	fmt.Fprintf(&b, "- Knowledge Gaps: %s\n", strings.Join(gaps, ", "))
	fmt.Fprintf(&b, "- Collaboration Readiness: %g\n", a.CollaborationReadiness.Score)
	fmt.Fprintf(&b, "- Working Directory: %s\n", wsLine)
	fmt.Fprintf(&b, "- Recent Collaborations: %s\n\n", strings.Join(partners, ", "))
	fmt.Fprintf(&b, "Capability Query: %q\n", query)
	fmt.Fprintf(&b, "Requesting Agent: %s\n\n", requesting)
	b.WriteString(`Assess whether this agent can perform the requested capability. Provide a structured response with:
1. Can perform (true/false)
2. Confidence level (0.0-1.0)
3. Required preparation steps
4. Estimated effort
5. Recommended approach
6. Fallback options
7. Collaboration suggestions

Format as JSON with the keys canPerform, confidenceLevel, requiredPreparation, estimatedEffort,
recommendedApproach, fallbackOptions, collaborationSuggestions.`)
	return b.String()
}

func enhancementPrompt(target, requestor domain.CapabilityAnalysis, e domain.CapabilityEnhancement) string {
	names := func(skills []domain.Skill) string {
		out := make([]string, 0, len(skills))
		for _, s := range skills {
			out = append(out, s.Name)
		}
		return strings.Join(out, ", ")
	}
	gaps := make([]string, 0, len(target.KnowledgeGaps))
	for _, g := range target.KnowledgeGaps {
		gaps = append(gaps, g.Area)
	}

	var b strings.Builder
	b.WriteString("Analyze a capability enhancement proposal from one agent to another.\n\n")
	b.WriteString("Target Agent Capabilities:\n")
	fmt.Fprintf(&b, "- Current Skills: %s\n", names(target.CurrentCapabilities))
	fmt.Fprintf(&b, "- Knowledge Gaps: %s\n\n", strings.Join(gaps, ", "))
	b.WriteString("Requesting Agent Capabilities:\n")
	fmt.Fprintf(&b, "- Current Skills: %s\n\n", names(requestor.CurrentCapabilities))
	b.WriteString("Enhancement Proposal:\n")
	fmt.Fprintf(&b, "- Capability: %s\n", e.Capability)
	fmt.Fprintf(&b, "- Justification: %s\n", e.Justification)
	fmt.Fprintf(&b, "- Urgency: %s\n", e.Urgency)
	fmt.Fprintf(&b, "- Expected Benefits: %s\n\n", strings.Join(e.Benefits, ", "))
	b.WriteString("Analyze feasibility, prerequisites, implementation plan, and team impact. Format as JSON with the keys\n")
	b.WriteString("feasible, reasoning, prerequisites, implementationPlan, impactOnTeam, approvalRequired.")
	return b.String()
}

// extractJSON вырезает JSON-объект из ответа модели: снимает ``` ограждения и текст вокруг.
func extractJSON(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return s[start : end+1], nil
}

type rawAssessment struct {
	CanPerform               bool                             `json:"canPerform"`
	ConfidenceLevel          float64                          `json:"confidenceLevel"`
	RequiredPreparation      []domain.PreparationStep         `json:"requiredPreparation"`
	EstimatedEffort          *domain.EffortEstimate           `json:"estimatedEffort"`
	RecommendedApproach      string                           `json:"recommendedApproach"`
	FallbackOptions          []domain.FallbackOption          `json:"fallbackOptions"`
	CollaborationSuggestions []domain.CollaborationSuggestion `json:"collaborationSuggestions"`
}

// parseAssessment заполняет каждое отсутствующее поле значением по умолчанию.
func parseAssessment(reply string) (domain.CapabilityAssessment, error) {
	body, err := extractJSON(reply)
	if err != nil {
		return domain.CapabilityAssessment{}, fmt.Errorf("Failed to parse assessment: %v", err)
	}
	var raw rawAssessment
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.CapabilityAssessment{}, fmt.Errorf("Failed to parse assessment: %v", err)
	}

	out := domain.CapabilityAssessment{
		CanPerform:               raw.CanPerform,
		ConfidenceLevel:          clamp01(raw.ConfidenceLevel),
		RequiredPreparation:      nonNil(raw.RequiredPreparation),
		EstimatedEffort:          unknownEffort(),
		RecommendedApproach:      raw.RecommendedApproach,
		FallbackOptions:          nonNil(raw.FallbackOptions),
		CollaborationSuggestions: nonNil(raw.CollaborationSuggestions),
	}
	if raw.EstimatedEffort != nil {
		out.EstimatedEffort = *raw.EstimatedEffort
		if out.EstimatedEffort.Complexity == "" {
			out.EstimatedEffort.Complexity = "unknown"
		}
		if out.EstimatedEffort.TimeRequired == "" {
			out.EstimatedEffort.TimeRequired = "unknown"
		}
		out.EstimatedEffort.ResourcesNeeded = nonNil(out.EstimatedEffort.ResourcesNeeded)
	}
	if out.RecommendedApproach == "" {
		out.RecommendedApproach = "No approach provided"
	}
	return out, nil
}

// errorAssessment: отрицательная оценка вместо ошибки.
func errorAssessment(msg string) domain.CapabilityAssessment {
	return domain.CapabilityAssessment{
		CanPerform:               false,
		ConfidenceLevel:          0,
		RequiredPreparation:      []domain.PreparationStep{},
		EstimatedEffort:          unknownEffort(),
		RecommendedApproach:      "Error: " + msg,
		FallbackOptions:          []domain.FallbackOption{},
		CollaborationSuggestions: []domain.CollaborationSuggestion{},
	}
}

func unknownEffort() domain.EffortEstimate {
	return domain.EffortEstimate{Complexity: "unknown", TimeRequired: "unknown", ResourcesNeeded: []string{}}
}

type rawEnhancement struct {
	Feasible           bool                        `json:"feasible"`
	Reasoning          string                      `json:"reasoning"`
	Prerequisites      []string                    `json:"prerequisites"`
	ImplementationPlan []domain.ImplementationStep `json:"implementationPlan"`
	ImpactOnTeam       *domain.TeamImpact          `json:"impactOnTeam"`
	ApprovalRequired   *bool                       `json:"approvalRequired"`
}

func parseEnhancement(reply string) (domain.EnhancementResponse, error) {
	body, err := extractJSON(reply)
	if err != nil {
		return domain.EnhancementResponse{}, fmt.Errorf("Failed to parse enhancement response: %v", err)
	}
	var raw rawEnhancement
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.EnhancementResponse{}, fmt.Errorf("Failed to parse enhancement response: %v", err)
	}

	out := domain.EnhancementResponse{
		Feasible:           raw.Feasible,
		Reasoning:          raw.Reasoning,
		Prerequisites:      nonNil(raw.Prerequisites),
		ImplementationPlan: nonNil(raw.ImplementationPlan),
		ImpactOnTeam:       domain.TeamImpact{Beneficiaries: []string{}, Risks: []string{}, OverallImpact: "unknown"},
		ApprovalRequired:   true,
	}
	if out.Reasoning == "" {
		out.Reasoning = "No reasoning provided"
	}
	if raw.ImpactOnTeam != nil {
		out.ImpactOnTeam = *raw.ImpactOnTeam
		out.ImpactOnTeam.Beneficiaries = nonNil(out.ImpactOnTeam.Beneficiaries)
		out.ImpactOnTeam.Risks = nonNil(out.ImpactOnTeam.Risks)
		if out.ImpactOnTeam.OverallImpact == "" {
			out.ImpactOnTeam.OverallImpact = "unknown"
		}
	}
	if raw.ApprovalRequired != nil {
		out.ApprovalRequired = *raw.ApprovalRequired
	}
	return out, nil
}

func errorEnhancement(msg string) domain.EnhancementResponse {
	return domain.EnhancementResponse{
		Feasible:           false,
		Reasoning:          "Error analyzing enhancement: " + msg,
		Prerequisites:      []string{},
		ImplementationPlan: []domain.ImplementationStep{},
		ImpactOnTeam: domain.TeamImpact{
			Beneficiaries: []string{},
			Risks:         []string{msg},
			OverallImpact: "negative",
		},
		ApprovalRequired: true,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
