package orchestrator

import (
	"fmt"
	"strings"
)

const genericDescription = "Specialized AI agent with domain expertise"

// Короткие описания для промпта планирования и сводки команды.
// Ключ: id без суффикса -agent.
var descriptions = map[string]string{
	"reviewer":                        "Quality validation, mission alignment checks, structured review feedback",
	"researcher":                      "Information gathering, analysis, documentation, research methodology",
	"communications":                  "User-facing content, documentation, messaging, strategic communication",
	"project-coordinator":             "Timeline management, resource allocation, project coordination",
	"full-stack-developer":            "Complete software solutions, architecture, full-stack development",
	"front-end-developer":             "User interface, responsive design, frontend technologies",
	"back-end-developer":              "Server infrastructure, APIs, databases, backend systems",
	"data-scientist":                  "Data analysis, ML models, statistical insights, data visualization",
	"test-expert":                     "Quality assurance, testing strategies, test automation",
	"security-expert":                 "Security assessment, vulnerability analysis, security protocols",
	"performance-expert":              "Performance optimization, monitoring, system efficiency",
	"music-coach":                     "Music education, theory, practice guidance, musical expertise",
	"image-generator":                 "Image creation, visual content generation, graphic design",
	"vinyl-researcher":                "Music research, vinyl records, music history and cataloging",
	"availability-reliability-expert": "System reliability, uptime optimization, availability engineering",
	"dev-design-doc-creator":          "Technical documentation, design documents, architecture specs",
	"experience-designer":             "User experience design, interface design, user research",
	"monitoring-expert":               "System monitoring, alerting, observability, performance tracking",
	"privacy-guardian":                "Privacy protection, data governance, compliance, privacy engineering",
	"product-manager":                 "Product strategy, roadmap planning, feature prioritization, stakeholder management",
	"personal-assistant":              "Scheduling, reminders, everyday organization and personal task support",
	"enhanced-master-orchestrator":    "Advanced multi-agent coordination, complex orchestration",
}

// describe: статическое описание; для неизвестных id общий текст.
func describe(id string) string {
	if d, ok := descriptions[strings.TrimSuffix(id, "-agent")]; ok {
		return d
	}
	return genericDescription
}

type taskTemplate struct {
	marker string
	format string
}

// Порядок важен: первое совпадение по подстроке id
var taskTemplates = []taskTemplate{
	{"researcher", "Research and gather comprehensive information about: %s"},
	{"data-scientist", "Analyze data patterns and provide statistical insights for: %s"},
	{"communications", "Synthesize information and create structured presentation for: %s"},
	{"project-coordinator", "Coordinate project timeline and manage deliverables for: %s"},
	{"full-stack-developer", "Implement complete technical solution for: %s"},
	{"front-end-developer", "Create user interface and front-end components for: %s"},
	{"back-end-developer", "Build server infrastructure and APIs for: %s"},
	{"music", "Provide music expertise and guidance for: %s"},
	{"image", "Generate or process images for: %s"},
}

// agentTask формулирует поручение агенту по его id.
func agentTask(agentID, userRequest string) string {
	if userRequest == "" {
		userRequest = "Unknown task"
	}
	for _, t := range taskTemplates {
		if strings.Contains(agentID, t.marker) {
			return fmt.Sprintf(t.format, userRequest)
		}
	}
	return fmt.Sprintf("Complete specialized task for: %s", userRequest)
}
