package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"carscout/app/config"

	"github.com/sashabaranov/go-openai"
)

func createClient(cfg config.ModelConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	return openai.NewClientWithConfig(clientConfig)
}

func renderTemplate(template string, values map[string]any) string {
	for key, value := range values {
		template = strings.ReplaceAll(template, "{"+key+"}", fmt.Sprint(value))
	}

	return template
}

// Models wrap JSON answers in code fences often enough to strip them
// unconditionally.
func stripFences(s string) string {
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "json")

	return strings.TrimSpace(s)
}
