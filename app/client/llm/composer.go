package llm

import (
	"context"
	"fmt"
	"strings"

	"carscout/app/config"
	"carscout/app/service/inventory"

	_ "embed"

	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

//go:embed reply_prompt_template.txt
var replyPromptTemplate string

const maxReplyTokens = 600

// ComposeInput is the minimal structured payload the reply model receives:
// the criteria diff and search results, never raw history.
type ComposeInput struct {
	UserText        string
	CriteriaSummary string
	CriteriaDiff    []string
	Results         *inventory.SearchResult
	NoMatches       bool
	Degraded        bool
}

// ReplyComposer phrases the assistant's turn, streaming text fragments
// through the onDelta callback as they are generated.
type ReplyComposer struct {
	llm *lcopenai.LLM
}

func NewReplyComposer(di *do.Injector) (*ReplyComposer, error) {
	cfg := do.MustInvoke[*config.Config](di)

	llm, err := lcopenai.New(
		lcopenai.WithToken(cfg.OpenAI.Reply.Token),
		lcopenai.WithBaseURL(cfg.OpenAI.Reply.BaseURL),
		lcopenai.WithModel(cfg.OpenAI.Reply.Model),
		lcopenai.WithCallback(logCallbackHandler{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply model: %w", err)
	}

	return &ReplyComposer{llm: llm}, nil
}

func (c *ReplyComposer) Compose(ctx context.Context, in ComposeInput, onDelta func(text string) error) (string, error) {
	results := "none, this is a clarifying turn"
	if in.Results != nil {
		results = fmt.Sprintf("%d total matches, showing %d:\n%s",
			in.Results.TotalCount, len(in.Results.Items), in.Results.PromptLines())
	}
	if in.NoMatches {
		results = "no matches in inventory for the current criteria"
	}

	changes := "none"
	if len(in.CriteriaDiff) > 0 {
		changes = strings.Join(in.CriteriaDiff, "\n")
	}

	degraded := "no"
	if in.Degraded {
		degraded = "yes, criteria could not be read from this message"
	}

	prompt := renderTemplate(replyPromptTemplate, map[string]any{
		"message":  in.UserText,
		"summary":  in.CriteriaSummary,
		"changes":  changes,
		"results":  results,
		"degraded": degraded,
	})

	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(maxReplyTokens),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onDelta(string(chunk))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no reply generated")
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
