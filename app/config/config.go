package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       Log       `yaml:"log"`
	DB        DB        `yaml:"db"`
	Server    Server    `yaml:"server"`
	OpenAI    OpenAI    `yaml:"openai"`
	Search    Search    `yaml:"search"`
	Readiness Readiness `yaml:"readiness"`
	MCP       MCP       `yaml:"mcp"`
}

type OpenAI struct {
	Extraction ModelConfig `yaml:"extraction" validate:"required"`
	Reply      ModelConfig `yaml:"reply" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"deepseek/deepseek-chat-v3-0324:free" validate:"required"`
}

type Server struct {
	// Listen address for the HTTP API
	Addr string `yaml:"addr" example:":8080" validate:"required"`
}

type Search struct {
	// Hard ceiling on inventory results per search, caller values are clamped to it
	MaxResults int `yaml:"max_results" example:"20" validate:"required,min=1"`
	// Result count requested when the client does not specify one
	DefaultResults int `yaml:"default_results" example:"5" validate:"required,min=1"`
}

type Readiness struct {
	// Criteria fields that alone justify running a search
	PrimaryFields []string `yaml:"primary_fields" validate:"required,min=1"`
	// Turns without readiness before a best-effort search is forced
	MaxClarifyingTurns int `yaml:"max_clarifying_turns" example:"3" validate:"required,min=1"`
}

type MCP struct {
	// Serve the inventory search as an MCP tool over stdio
	Enabled bool `yaml:"enabled" example:"false"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type DB struct {
	// Postgres username
	User string `yaml:"user" example:"postgres" validate:"required"`
	// Postgres password
	Pass string `yaml:"pass" validate:"required"`
	// Postgres host
	Host string `yaml:"host"  example:"localhost:5432" validate:"required"`
	// Postgres database name
	Database string `yaml:"database" example:"carscout" validate:"required"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	if result.DB.User == "" {
		result.DB.User = "postgres"
	}
	if result.DB.Pass == "" {
		result.DB.Pass = "postgres"
	}
	if result.DB.Host == "" {
		result.DB.Host = "localhost:5432"
	}
	if result.DB.Database == "" {
		result.DB.Database = "carscout"
	}
	if result.Server.Addr == "" {
		result.Server.Addr = ":8080"
	}
	if result.Search.MaxResults == 0 {
		result.Search.MaxResults = 20
	}
	if result.Search.DefaultResults == 0 {
		result.Search.DefaultResults = 5
	}
	if len(result.Readiness.PrimaryFields) == 0 {
		result.Readiness.PrimaryFields = []string{"body_style", "price_to", "brand"}
	}
	if result.Readiness.MaxClarifyingTurns == 0 {
		result.Readiness.MaxClarifyingTurns = 3
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}
