package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carscout/app/config"
	"carscout/app/service/criteria"

	_ "embed"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

//go:embed extraction_prompt_template.txt
var extractionPromptTemplate string

// ExtractionAgent turns the latest user message plus a compact summary of
// the accumulated criteria into a partial criteria update. A missing key in
// the model's JSON answer means "not mentioned", null means "remove this
// constraint".
type ExtractionAgent struct {
	client *openai.Client
	model  string
}

func NewExtractionAgent(di *do.Injector) (*ExtractionAgent, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &ExtractionAgent{
		client: createClient(cfg.OpenAI.Extraction),
		model:  cfg.OpenAI.Extraction.Model,
	}, nil
}

func (a *ExtractionAgent) Extract(ctx context.Context, userText, intentSummary string) (*criteria.Extraction, error) {
	prompt := renderTemplate(extractionPromptTemplate, map[string]any{
		"now":     time.Now().Format("15:04:05"),
		"summary": intentSummary,
		"message": userText,
	})

	aiResponse, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxCompletionTokens: 1000,
			Temperature:         0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion found")
	}

	result := stripFences(aiResponse.Choices[0].Message.Content)

	var response criteria.Extraction
	if err = json.Unmarshal([]byte(result), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}
