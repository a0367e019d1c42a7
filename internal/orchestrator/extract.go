package orchestrator

import (
	"regexp"
	"strings"
)

// Ответ сервиса рассуждений не имеет схемы. Разбор намеренно нечеткий:
// набор шаблонов применяется целиком, кандидаты потом валидируются каталогом.
var (
	reSelectedBlock = regexp.MustCompile(`(?i)\*\*SELECTED AGENTS:\*\*\s*\n((?:[ \t]*[-*•][^\n]*\n?)+)`)

	labeledPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Lead Agents?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)Supporting Agents?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)\bAgents?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)Selected Agents?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)Required Agents?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)Assigned Agents?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)Team Members?:\s*([^\n*]+)`),
		regexp.MustCompile(`(?i)Coordination Team:\s*([^\n*]+)`),
	}

	// "- Researcher Agent ..." в списках
	reBulletAgent = regexp.MustCompile(`(?m)^[ \t]*[-*•][ \t]*([A-Z][A-Za-z-]*(?:[ \t]+[A-Z][A-Za-z-]*)*[ \t]+Agent)\b`)
	// Голое упоминание "Data Scientist Agent" в тексте
	reBareAgent = regexp.MustCompile(`\b([A-Z][a-z]+(?:[ -][A-Z][a-z]+)*[ -]Agent)\b`)

	reTokenSplit = regexp.MustCompile(`\s*(?:[,;/\n]|\band\b|&)\s*`)
)

// Слова, которые попадают под шаблоны, но агентами не являются
var genericTokens = map[string]struct{}{
	"agent": {}, "agents": {}, "lead-agent": {}, "supporting-agent": {}, "selected-agent": {},
	"required-agent": {}, "assigned-agent": {}, "team": {}, "none": {}, "all": {}, "the": {},
	"each-agent": {}, "the-agent": {}, "this-agent": {}, "an-agent": {}, "master-orchestrator": {},
	"tbd": {}, "n/a": {}, "other": {}, "others": {},
}

// ExtractCandidates: чистая функция текст -> кандидаты в порядке первого появления.
// Кандидаты не проверены по каталогу: это делает resolveAgents.
func ExtractCandidates(text string) []string {
	var raw []string

	// 1. Структурированный блок имеет наивысший приоритет
	for _, m := range reSelectedBlock.FindAllStringSubmatch(text, -1) {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimLeft(line, "-*• \t")
			if line == "" {
				continue
			}
			raw = append(raw, line)
		}
	}

	// 2. Маркированные метки "Agents: a, b"
	for _, re := range labeledPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw = append(raw, reTokenSplit.Split(m[1], -1)...)
		}
	}

	// 3. Списки и голые упоминания
	for _, re := range []*regexp.Regexp{reBulletAgent, reBareAgent} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw = append(raw, m[1])
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = cleanToken(tok)
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// cleanToken отрезает пояснения "(for research)" и " - описание", отбрасывает шум.
func cleanToken(tok string) string {
	if i := strings.Index(tok, "("); i >= 0 {
		tok = tok[:i]
	}
	if i := strings.Index(tok, " - "); i >= 0 {
		tok = tok[:i]
	}
	if i := strings.Index(tok, ":"); i >= 0 {
		tok = tok[:i]
	}
	tok = strings.Trim(tok, " \t*`\"'.")
	if len(tok) < 3 {
		return ""
	}
	key := strings.ToLower(strings.Join(strings.Fields(tok), "-"))
	if _, generic := genericTokens[key]; generic {
		return ""
	}
	return tok
}
