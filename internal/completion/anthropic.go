package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
)

// AnthropicService: реализация Service поверх Messages API.
type AnthropicService struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

func NewAnthropicService(cfg infra.CompletionConfig, logger *zap.Logger) (*AnthropicService, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	// Повторы делает ReliableService, встроенные ретраи SDK выключаем
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	return &AnthropicService{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.Named("completion"),
	}, nil
}

func (s *AnthropicService) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages:  toParams(messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}

	s.logger.Debug("completion done",
		zap.String("model", string(s.model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("took", time.Since(start)),
	)
	return out.String(), nil
}

func toParams(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

// classify превращает 429 в ThrottleError, чтобы ретраер взял задержку у провайдера.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		wait := 5 * time.Second
		if apiErr.Response != nil {
			if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("retry-after")); convErr == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
		return &ThrottleError{RetryAfter: wait, Cause: err}
	}
	return fmt.Errorf("completion: anthropic call failed: %w", err)
}
