package connectors

import (
	"encoding/json"
	"fmt"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// Поля конверта. Сообщения, google.protobuf.Struct, отдельная .proto схема не нужна.
const (
	fieldAgent   = "agent"
	fieldType    = "type"
	fieldPayload = "payload"
	fieldSuccess = "success"
	fieldResult  = "result"
	fieldError   = "error"
)

// plain приводит произвольное значение к виду, который понимает structpb
// (map[string]interface{}, []interface{}, float64...), через JSON.
func plain(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeTask(agentID string, task domain.Task) (*structpb.Struct, error) {
	payload, err := plain(task.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		fieldAgent:   agentID,
		fieldType:    task.Type,
		fieldPayload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}
	return s, nil
}

func decodeTask(s *structpb.Struct) (string, domain.Task) {
	m := s.AsMap()
	agentID, _ := m[fieldAgent].(string)
	taskType, _ := m[fieldType].(string)
	payload, _ := m[fieldPayload].(map[string]interface{})
	return agentID, domain.Task{Type: taskType, Payload: payload}
}

func encodeResult(res domain.TaskResult) (*structpb.Struct, error) {
	result, err := plain(res.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		fieldSuccess: res.Success,
		fieldResult:  result,
		fieldError:   res.Error,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}
	return s, nil
}

func decodeResult(s *structpb.Struct) domain.TaskResult {
	m := s.AsMap()
	success, _ := m[fieldSuccess].(bool)
	errMsg, _ := m[fieldError].(string)
	return domain.TaskResult{Success: success, Result: m[fieldResult], Error: errMsg}
}
