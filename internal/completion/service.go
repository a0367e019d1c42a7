package completion

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured: сервис рассуждений не может быть создан без ключа.
var ErrNotConfigured = errors.New("ANTHROPIC_API_KEY environment variable is not set")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// User: короткий конструктор пользовательского сообщения.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Service внешний сервис рассуждений. Системный промпт плюс сообщения на вход,
// свободный текст на выход. Структура ответа не гарантируется.
type Service interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// Func позволяет использовать функцию как Service (стабы в тестах, локальные заглушки).
type Func func(ctx context.Context, system string, messages []Message) (string, error)

func (f Func) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	return f(ctx, system, messages)
}

// ThrottleError: провайдер попросил подождать (429 + Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
