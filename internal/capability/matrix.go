package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

// coverage ищет, кто из команды закрывает пробел агента: навык с тем же именем (без учета регистра).
func coverage(gap string, profiles []domain.AgentProfile, except string) (string, float64) {
	best, score := "", 0.0
	for _, p := range profiles {
		if p.AgentID == except {
			continue
		}
		for _, s := range p.Analysis.CurrentCapabilities {
			if !strings.EqualFold(s.Name, gap) {
				continue
			}
			if c := p.Analysis.ConfidenceLevels[s.Name]; c > score {
				best, score = p.AgentID, c
			}
		}
	}
	return best, score
}

// optimalPaths: от агента с пробелом к агенту, который этот пробел закрывает.
func optimalPaths(profiles []domain.AgentProfile) []domain.CollaborationPath {
	out := []domain.CollaborationPath{}
	for _, p := range profiles {
		for _, g := range p.Analysis.KnowledgeGaps {
			to, score := coverage(g.Area, profiles, p.AgentID)
			if to == "" {
				continue
			}
			out = append(out, domain.CollaborationPath{
				From:   p.AgentID,
				To:     to,
				Reason: fmt.Sprintf("%s covers the %s gap", to, g.Area),
				Score:  score,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// synergies: пары с взаимодополняющими навыками и пары с общей категорией навыков.
func synergies(profiles []domain.AgentProfile) []domain.TeamSynergy {
	out := []domain.TeamSynergy{}
	seen := make(map[string]bool)

	add := func(a, b, kind string, potential float64) {
		if a > b {
			a, b = b, a
		}
		key := a + "|" + b + "|" + kind
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, domain.TeamSynergy{Agents: []string{a, b}, SynergyType: kind, Potential: potential})
	}

	for _, path := range optimalPaths(profiles) {
		add(path.From, path.To, "complementary-skills", path.Score)
	}

	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			if cat := sharedCategory(profiles[i].Analysis, profiles[j].Analysis); cat != "" {
				potential := (profiles[i].Analysis.CollaborationReadiness.Score + profiles[j].Analysis.CollaborationReadiness.Score) / 2
				add(profiles[i].AgentID, profiles[j].AgentID, "shared-"+cat, potential)
			}
		}
	}
	return out
}

// sharedCategory игнорирует "core": это категория синтезированных навыков, она есть у всех.
func sharedCategory(a, b domain.CapabilityAnalysis) string {
	cats := make(map[string]bool)
	for _, s := range a.CurrentCapabilities {
		if s.Category != "" && s.Category != "core" {
			cats[s.Category] = true
		}
	}
	for _, s := range b.CurrentCapabilities {
		if cats[s.Category] {
			return s.Category
		}
	}
	return ""
}

// teamGaps: пробелы, которые не закрывает никто в команде. Severity, максимальная среди агентов.
func teamGaps(profiles []domain.AgentProfile) []domain.TeamGap {
	byArea := make(map[string]*domain.TeamGap)
	order := []string{}
	for _, p := range profiles {
		for _, g := range p.Analysis.KnowledgeGaps {
			if to, _ := coverage(g.Area, profiles, p.AgentID); to != "" {
				continue
			}
			key := strings.ToLower(g.Area)
			tg, ok := byArea[key]
			if !ok {
				tg = &domain.TeamGap{Area: g.Area, Severity: g.Severity, Agents: []string{}}
				byArea[key] = tg
				order = append(order, key)
			}
			tg.Agents = append(tg.Agents, p.AgentID)
			if severityRank[g.Severity] > severityRank[tg.Severity] {
				tg.Severity = g.Severity
			}
		}
	}
	out := make([]domain.TeamGap, 0, len(order))
	for _, k := range order {
		out = append(out, *byArea[k])
	}
	return out
}

// teamEnhancements: рекомендации агентов, сведенные по области.
func teamEnhancements(profiles []domain.AgentProfile) []domain.Enhancement {
	out := []domain.Enhancement{}
	seen := make(map[string]bool)
	for _, p := range profiles {
		for _, e := range p.Analysis.RecommendedEnhancements {
			key := strings.ToLower(e.Area)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	return out
}
