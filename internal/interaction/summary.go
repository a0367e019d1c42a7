package interaction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// summarizeRequest: короткий запрос как есть, длинный, первые 12 слов с пометкой.
func summarizeRequest(req string) string {
	if len(req) <= 120 {
		return req
	}
	words := strings.Split(req, " ")
	if len(words) <= 15 {
		return req
	}
	return strings.Join(words[:12], " ") + " [Request summary]"
}

// summarizeTask сохраняет начало и конец задачи.
func summarizeTask(task string) string {
	if len(task) <= 100 {
		return task
	}
	words := strings.Split(task, " ")
	if len(words) <= 12 {
		return task
	}
	return fmt.Sprintf("%s... %s", strings.Join(words[:8], " "), strings.Join(words[len(words)-3:], " "))
}

var reSentenceEnd = regexp.MustCompile(`[.!?]+`)

// summarizeOutput: первое и последнее предложение, если помещаются.
func summarizeOutput(out string) string {
	if len(out) <= 200 {
		return out
	}

	var sentences []string
	for _, s := range reSentenceEnd.Split(out, -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= 2 {
		return truncate(out, 200) + "..."
	}

	first := strings.TrimSpace(sentences[0]) + "."
	last := strings.TrimSpace(sentences[len(sentences)-1]) + "."
	if len(first)+len(last) <= 180 {
		return first + " ... " + last
	}
	if len(first) <= 150 {
		return first + " [Output completed]"
	}
	return truncate(first, 150) + "..."
}

// truncate режет строку не длиннее n байт по границе руны.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// categorizeTask: грубая классификация задачи по ключевым словам.
func categorizeTask(task string) string {
	t := strings.ToLower(task)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(t, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("research", "analyze"):
		return "Research & Analysis"
	case has("code", "implement", "develop"):
		return "Development"
	case has("write", "document", "communication"):
		return "Content Creation"
	case has("test", "qa", "quality"):
		return "Quality Assurance"
	case has("deploy", "infrastructure", "devops"):
		return "DevOps"
	}
	return "General"
}

var complexityWeight = map[string]float64{"simple": 1, "moderate": 2, "complex": 3, "expert": 4}

// averageComplexity. Неизвестная сложность считается moderate.
func averageComplexity(cs []string) string {
	if len(cs) == 0 {
		return "moderate"
	}
	total := 0.0
	for _, c := range cs {
		w, ok := complexityWeight[c]
		if !ok {
			w = 2
		}
		total += w
	}
	avg := total / float64(len(cs))
	switch {
	case avg <= 1.5:
		return "simple"
	case avg <= 2.5:
		return "moderate"
	case avg <= 3.5:
		return "complex"
	}
	return "expert"
}
