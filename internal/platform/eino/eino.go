// Package eino provides the optional LLM post-processing step for scraped
// content, built on CloudWeGo's Eino framework with Gemini as the provider.
package eino

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"scrapengine/internal/logger"
)

type Config struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// Service transforms scraped markdown according to caller instructions,
// e.g. "summarize in three bullet points" or "extract all product names".
type Service struct {
	config   Config
	model    model.BaseChatModel
	template prompt.ChatTemplate
	log      *logger.Logger
}

func NewService(config Config) (*Service, error) {
	s := &Service{config: config, log: logger.New("Transformer")}

	switch strings.ToLower(config.Provider) {
	case "gemini":
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: config.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		m, err := gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini chat model: %w", err)
		}
		s.model = m
	default:
		return nil, fmt.Errorf("unsupported provider: %s. Supported: gemini", config.Provider)
	}

	s.template = transformTemplate()
	return s, nil
}

// NewServiceWithModel injects a pre-built chat model. Used by tests.
func NewServiceWithModel(config Config, m model.BaseChatModel) *Service {
	return &Service{config: config, model: m, template: transformTemplate(), log: logger.New("Transformer")}
}

func transformTemplate() prompt.ChatTemplate {
	system := schema.SystemMessage(`You transform scraped web content according to the user's instructions.

Rules:
1. Work only from the provided content. Never invent facts.
2. Return the transformed content directly, with no preamble or commentary.
3. Preserve markdown formatting unless the instructions say otherwise.`)

	user := schema.UserMessage(`INSTRUCTIONS: {instructions}

CONTENT:
{content}`)

	return prompt.FromMessages(schema.FString, system, user)
}

// Transform applies instructions to content and returns the model output.
func (s *Service) Transform(ctx context.Context, content, instructions string) (string, error) {
	if s.model == nil {
		return "", fmt.Errorf("chat model not initialized")
	}

	messages, err := s.template.Format(ctx, map[string]any{
		"instructions": instructions,
		"content":      content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format chat template: %w", err)
	}

	resp, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// HealthCheck reports whether the model answers a trivial prompt.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if s.model == nil {
		return false
	}
	_, err := s.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		s.log.LogWarnf("health check failed: %v", err)
	}
	return err == nil
}
