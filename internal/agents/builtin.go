package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-agentmesh/internal/completion"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

// builtins: встроенные агенты платформы. Kind определяет реализацию.
var builtins = []domain.AgentDescriptor{
	{ID: "project-coordinator-agent", Name: "Project Coordinator", Kind: string(KindCoordinator),
		Description: "Timeline management, resource allocation, project coordination",
		Abilities:   []string{"timeline planning", "resource allocation", "progress tracking", "risk management"}},
	{ID: "communications-agent", Name: "Communications Specialist", Kind: string(KindCommunications),
		Description: "User-facing content, documentation, messaging, strategic communication",
		Abilities:   []string{"content writing", "documentation", "stakeholder messaging", "editing"}},
	{ID: "researcher-agent", Name: "Research Specialist", Kind: string(KindResearcher),
		Description: "Information gathering, analysis, documentation, research methodology",
		Abilities:   []string{"information gathering", "source analysis", "literature review", "fact checking"}},
	{ID: "data-scientist-agent", Name: "Data Scientist", Kind: string(KindAnalyst),
		Description: "Data analysis, ML models, statistical insights, data visualization",
		Abilities:   []string{"statistical analysis", "machine learning", "data visualization", "forecasting"}},
	{ID: "reviewer-agent", Name: "Quality Reviewer", Kind: string(KindAnalyst),
		Description: "Quality validation, independent review, multi-LLM verification, feedback generation",
		Abilities:   []string{"quality validation", "independent review", "feedback generation"}},
	{ID: "full-stack-developer-agent", Name: "Full Stack Developer", Kind: string(KindDeveloper),
		Description: "Complete software solutions, architecture, full-stack development",
		Abilities:   []string{"system architecture", "full-stack development", "code review", "deployment"}},
	{ID: "front-end-developer-agent", Name: "Front End Developer", Kind: string(KindDeveloper),
		Description: "User interface, responsive design, frontend technologies",
		Abilities:   []string{"user interface development", "responsive design", "accessibility"}},
	{ID: "back-end-developer-agent", Name: "Back End Developer", Kind: string(KindDeveloper),
		Description: "Server infrastructure, APIs, databases, backend systems",
		Abilities:   []string{"api design", "database modeling", "server infrastructure"}},
	{ID: "product-manager-agent", Name: "Product Manager", Kind: string(KindCoordinator),
		Description: "Product strategy, roadmap planning, feature prioritization, stakeholder management",
		Abilities:   []string{"product strategy", "roadmap planning", "feature prioritization"}},
	{ID: "music-coach-agent", Name: "Music Coach", Kind: string(KindCreative),
		Description: "Music education, theory, practice guidance, musical expertise",
		Abilities:   []string{"music theory", "practice planning", "technique coaching"}},
	{ID: "image-generator-agent", Name: "Image Generator", Kind: string(KindCreative),
		Description: "Image creation, visual content generation, graphic design",
		Abilities:   []string{"image creation", "visual design", "prompt crafting"}},
	{ID: "personal-assistant-agent", Name: "Personal Assistant", Kind: string(KindAssistant),
		Description: "Personal scheduling, reminders, identity-aware communication",
		Abilities:   []string{"scheduling", "reminders", "personalized communication"}},
}

// Builtins возвращает копию встроенных описаний.
func Builtins() []domain.AgentDescriptor {
	out := make([]domain.AgentDescriptor, len(builtins))
	for i, d := range builtins {
		d.Abilities = append([]string(nil), d.Abilities...)
		out[i] = d
	}
	return out
}

// BuiltinSource: статический реестр встроенных агентов.
type BuiltinSource struct{}

func (BuiltinSource) Name() string { return "builtin" }

func (BuiltinSource) Discover(ctx context.Context) ([]domain.AgentDescriptor, error) {
	return Builtins(), nil
}

// RegisterBuiltinKinds связывает все локальные Kind с шаблонным агентом.
// llm может быть nil: тогда агенты отвечают шаблонным текстом без обращения к модели.
func RegisterBuiltinKinds(dir *Directory, llm completion.Service, logger *zap.Logger) {
	for _, kind := range []Kind{
		KindCoordinator, KindCommunications, KindResearcher, KindAnalyst,
		KindCreative, KindDeveloper, KindAssistant,
	} {
		k := kind
		dir.RegisterKind(k, func(desc domain.AgentDescriptor) (Handler, error) {
			return NewTemplateAgent(desc, k, llm, logger), nil
		})
	}
}

// TemplateAgent типовой агент. Исполняет задачу через модель от имени своей роли,
// без модели отвечает шаблоном.
type TemplateAgent struct {
	desc   domain.AgentDescriptor
	kind   Kind
	llm    completion.Service
	logger *zap.Logger
}

func NewTemplateAgent(desc domain.AgentDescriptor, kind Kind, llm completion.Service, logger *zap.Logger) *TemplateAgent {
	return &TemplateAgent{
		desc:   desc,
		kind:   kind,
		llm:    llm,
		logger: logger.Named("agent").With(zap.String("agent_id", desc.ID)),
	}
}

func (a *TemplateAgent) Handle(ctx context.Context, task domain.Task) domain.TaskResult {
	switch task.Type {
	case domain.TaskExecute:
		return a.execute(ctx, task)
	case domain.TaskElevatorPitch:
		return a.pitch(ctx)
	default:
		return domain.Failed(fmt.Sprintf("Unknown task type: %s", task.Type))
	}
}

func (a *TemplateAgent) execute(ctx context.Context, task domain.Task) domain.TaskResult {
	text := task.PayloadString("task")
	if text == "" {
		text = task.PayloadString("userRequest")
	}
	if text == "" {
		return domain.Failed("task text is empty")
	}

	if a.llm == nil {
		return domain.Succeeded(fmt.Sprintf("%s completed %s work: %s", a.displayName(), a.kind, text))
	}

	out, err := a.llm.Complete(ctx, a.systemPrompt(), []completion.Message{completion.User(text)})
	if err != nil {
		a.logger.Error("completion failed", zap.Error(err))
		return domain.Failed(err.Error())
	}
	return domain.Succeeded(strings.TrimSpace(out))
}

func (a *TemplateAgent) pitch(ctx context.Context) domain.TaskResult {
	if a.llm != nil {
		out, err := a.llm.Complete(ctx, a.systemPrompt(), []completion.Message{
			completion.User("Describe your capabilities in one sentence, as an elevator pitch."),
		})
		if err == nil && strings.TrimSpace(out) != "" {
			return domain.Succeeded(strings.TrimSpace(out))
		}
		if err != nil {
			return domain.Failed(err.Error())
		}
	}
	if a.desc.Description == "" {
		return domain.Failed("no description")
	}
	return domain.Succeeded(fmt.Sprintf("I handle %s.", strings.ToLower(a.desc.Description)))
}

func (a *TemplateAgent) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s agent.", a.displayName())
	if a.desc.Description != "" {
		fmt.Fprintf(&b, " Focus: %s.", a.desc.Description)
	}
	if len(a.desc.Abilities) > 0 {
		fmt.Fprintf(&b, " Abilities: %s.", strings.Join(a.desc.Abilities, ", "))
	}
	b.WriteString(" Answer concisely and stay within your role.")
	return b.String()
}

func (a *TemplateAgent) displayName() string {
	if a.desc.Name != "" {
		return a.desc.Name
	}
	return titleCase(a.desc.ID)
}
