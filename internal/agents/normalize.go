package agents

import (
	"regexp"
	"strings"
)

var (
	reBoldPrefix  = regexp.MustCompile(`^\*\*:?`)
	reBoldSuffix  = regexp.MustCompile(`\*\*$`)
	reLeadingJunk = regexp.MustCompile(`^[*\-\s•]+`)
	reTailJunk    = regexp.MustCompile(`[*\-\s.,:;!?)"']+$`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

const agentSuffix = "-agent"

// cleanName приводит свободный текст к виду kebab-case без markdown и маркеров списка.
func cleanName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = reBoldPrefix.ReplaceAllString(s, "")
	s = reBoldSuffix.ReplaceAllString(s, "")
	s = reLeadingJunk.ReplaceAllString(s, "")
	s = reTailJunk.ReplaceAllString(s, "")
	s = strings.Trim(s, `"'(`)
	return reSpaces.ReplaceAllString(s, "-")
}

// normalizeAgainst ищет канонический id среди known (порядок known определяет победителя partial-совпадения):
// точное совпадение, затем с суффиксом -agent, затем без него, затем по отображаемому имени, затем частичное.
// byName: очищенное отображаемое имя -> id.
// Если ничего не подошло, возвращается очищенный вход, вызывающий обязан перепроверить его.
func normalizeAgainst(raw string, known []string, byName map[string]string) string {
	cleaned := cleanName(raw)
	if cleaned == "" {
		return ""
	}

	set := make(map[string]struct{}, len(known))
	for _, id := range known {
		set[id] = struct{}{}
	}

	// 1. Точное совпадение
	if _, ok := set[cleaned]; ok {
		return cleaned
	}

	// 2. researcher -> researcher-agent
	if _, ok := set[cleaned+agentSuffix]; ok {
		return cleaned + agentSuffix
	}

	// 3. researcher-agent -> researcher
	withoutAgent := strings.Replace(cleaned, agentSuffix, "", 1)
	if _, ok := set[withoutAgent]; ok {
		return withoutAgent
	}

	// 4. "Research Specialist Agent" -> researcher-agent
	if id, ok := byName[cleaned]; ok {
		return id
	}
	if id, ok := byName[strings.TrimSuffix(cleaned, agentSuffix)]; ok {
		return id
	}

	// 5. Частичное совпадение
	for _, id := range known {
		base := strings.TrimSuffix(id, agentSuffix)
		if strings.Contains(id, cleaned) || (base != "" && strings.Contains(cleaned, base)) {
			return id
		}
	}

	return cleaned
}

// titleCase строит отображаемое имя механически: researcher-agent -> Researcher Agent.
func titleCase(id string) string {
	parts := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
