package orchestrator

import (
	"regexp"
	"strings"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// Справочные поля плана. Программно не используются, поэтому разбор без гарантий.
var (
	reTimeline     = regexp.MustCompile(`(?i)(?:timeline|duration|time):?\s*([^\n]+)`)
	reDependencies = regexp.MustCompile(`(?i)(?:dependencies|depends on):?\s*([^\n]+)`)
	reSteps        = regexp.MustCompile(`(?m)^\d+\.\s*(.+)$`)
	reRisks        = regexp.MustCompile(`(?i)(?:risks?|challenges?):?\s*([^\n]+)`)
)

const noTimeline = "Timeline not specified"

func withAdvisory(plan domain.OrchestrationPlan, text string) domain.OrchestrationPlan {
	plan.Timeline = extractTimeline(text)
	plan.Dependencies = splitList(reDependencies, text)
	plan.Steps = extractSteps(text)
	plan.Risks = splitList(reRisks, text)
	return plan
}

func extractTimeline(text string) string {
	if m := reTimeline.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			return s
		}
	}
	return noTimeline
}

func extractSteps(text string) []string {
	steps := make([]string, 0)
	for _, m := range reSteps.FindAllString(text, -1) {
		steps = append(steps, strings.TrimSpace(m))
	}
	return steps
}

// splitList: первая строка под меткой, разбитая по запятым.
func splitList(re *regexp.Regexp, text string) []string {
	out := make([]string, 0)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return out
	}
	for _, part := range strings.Split(m[1], ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
