package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/audit"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

// ErrAccessDenied: пары (агент, тип данных) нет в allow-list.
var ErrAccessDenied = errors.New("access denied")

// Типы задач моста
const (
	TaskVerifyAccess           = "verify-access"
	TaskGetIdentityData        = "get-identity-data"
	TaskGetCommunicationsStyle = "get-communications-style"
	TaskGetProjectContext      = "get-project-context"
	TaskGetAuditLog            = "get-audit-log"
)

// Типы данных по умолчанию, если задача не уточнила dataType
const (
	DataIdentity           = "identity"
	DataCommunicationStyle = "communications-style"
	DataProjectContext     = "project-context"
	DataAuditLog           = "audit-log"
)

const ID = "secure-data-bridge"

// AuditReader: чтение журнала для get-audit-log.
type AuditReader interface {
	Entries() []domain.AuditEntry
}

// Bridge: единственная дверь к данным персоны.
// Любое обращение, разрешенное или нет, попадает в журнал доступа.
type Bridge struct {
	policy   *Policy
	source   Source
	recorder audit.Recorder
	reader   AuditReader
	now      func() time.Time
	logger   *zap.Logger
}

func New(policy *Policy, source Source, recorder audit.Recorder, reader AuditReader, logger *zap.Logger) *Bridge {
	return &Bridge{
		policy:   policy,
		source:   source,
		recorder: recorder,
		reader:   reader,
		now:      time.Now,
		logger:   logger.Named("bridge"),
	}
}

// Descriptor: описание моста для каталога агентов.
func Descriptor() domain.AgentDescriptor {
	return domain.AgentDescriptor{
		ID:          ID,
		Name:        "Secure Data Bridge",
		Description: "Allow-list gated access to persona identity, communication style and project context",
		Abilities:   []string{"Access verification", "Persona data retrieval", "Access audit trail"},
		Kind:        "bridge",
	}
}

// Handle: единый контракт. Отказ в доступе, success=false, паники и ошибки наружу не идут.
func (b *Bridge) Handle(ctx context.Context, task domain.Task) domain.TaskResult {
	agentID := task.PayloadString("requestingAgent")

	switch task.Type {
	case TaskVerifyAccess:
		dataType := task.PayloadString("dataType")
		if err := b.check(agentID, dataType, "access verification"); err != nil {
			return domain.Failed(err.Error())
		}
		return domain.Succeeded(map[string]interface{}{
			"hasAccess":       true,
			"requestingAgent": agentID,
			"dataType":        dataType,
		})
	case TaskGetIdentityData:
		return b.fetch(ctx, agentID, dataTypeOr(task, DataIdentity))
	case TaskGetCommunicationsStyle:
		return b.fetch(ctx, agentID, dataTypeOr(task, DataCommunicationStyle))
	case TaskGetProjectContext:
		return b.fetch(ctx, agentID, dataTypeOr(task, DataProjectContext))
	case TaskGetAuditLog:
		if err := b.check(agentID, DataAuditLog, "audit log read"); err != nil {
			return domain.Failed(err.Error())
		}
		if b.reader == nil {
			return domain.Succeeded([]domain.AuditEntry{})
		}
		return domain.Succeeded(b.reader.Entries())
	default:
		return domain.Failed(fmt.Sprintf("Unknown task type: %s", task.Type))
	}
}

func dataTypeOr(task domain.Task, def string) string {
	if dt := task.PayloadString("dataType"); dt != "" {
		return dt
	}
	return def
}

func (b *Bridge) fetch(ctx context.Context, agentID, dataType string) domain.TaskResult {
	if err := b.check(agentID, dataType, "data request"); err != nil {
		return domain.Failed(err.Error())
	}
	data, err := b.source.Fetch(ctx, dataType)
	if err != nil {
		b.logger.Warn("persona data unavailable", zap.String("data_type", dataType), zap.Error(err))
		return domain.Failed(err.Error())
	}
	return domain.Succeeded(data)
}

// check решает по allow-list и пишет запись журнала в любом исходе.
func (b *Bridge) check(agentID, dataType, what string) error {
	effect := domain.EffectDeny
	if agentID != "" && dataType != "" {
		effect = b.policy.Decide(agentID, dataType)
	}

	entry := domain.AuditEntry{
		Timestamp: b.now().UTC().Format(audit.TimestampLayout),
		Agent:     agentID,
		DataType:  dataType,
	}
	if effect == domain.EffectAllow {
		entry.Action = "granted"
		entry.Summary = fmt.Sprintf("%s granted for %s", what, dataType)
	} else {
		entry.Action = "denied"
		entry.Summary = fmt.Sprintf("%s denied for %s", what, dataType)
	}
	if b.recorder != nil {
		b.recorder.Record(entry)
	}

	if effect != domain.EffectAllow {
		b.logger.Warn("access denied", zap.String("agent_id", agentID), zap.String("data_type", dataType))
		return fmt.Errorf("%w: agent %q has no access to %q", ErrAccessDenied, agentID, dataType)
	}
	return nil
}
