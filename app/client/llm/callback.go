package llm

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

var _ callbacks.Handler = logCallbackHandler{}

type logCallbackHandler struct{}

func (l logCallbackHandler) HandleText(ctx context.Context, text string) {}

func (l logCallbackHandler) HandleLLMStart(ctx context.Context, prompts []string) {}

func (l logCallbackHandler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
}

func (l logCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
}

func (l logCallbackHandler) HandleLLMError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "LLM error", "error", err)
}

func (l logCallbackHandler) HandleChainStart(ctx context.Context, inputs map[string]any) {}

func (l logCallbackHandler) HandleChainEnd(ctx context.Context, outputs map[string]any) {}

func (l logCallbackHandler) HandleChainError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "Chain error", "error", err)
}

func (l logCallbackHandler) HandleToolStart(ctx context.Context, input string) {}

func (l logCallbackHandler) HandleToolEnd(ctx context.Context, output string) {}

func (l logCallbackHandler) HandleToolError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "Tool error", "error", err)
}

func (l logCallbackHandler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {}

func (l logCallbackHandler) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {}

func (l logCallbackHandler) HandleRetrieverStart(ctx context.Context, query string) {}

func (l logCallbackHandler) HandleRetrieverEnd(ctx context.Context, query string, documents []schema.Document) {
}

func (l logCallbackHandler) HandleStreamingFunc(ctx context.Context, chunk []byte) {}
