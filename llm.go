package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

//////////////////////////////////////////////////////////////
// LLM CLIENT
//////////////////////////////////////////////////////////////

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
	ProviderOllama = "ollama"
)

var defaultModels = map[string]string{
	ProviderGemini: "gemini-2.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderOllama: "llama3:latest",
}

// A one-word verdict is all we want back.
const verdictMaxTokens = 10

var ErrUnconfigured = errors.New("moderation model is not configured")

// Generator sends one prompt to a hosted model and returns its plain-text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Unconfigured stands in for a backend that could not be built at startup.
// The moderator recognises it and never calls it.
type Unconfigured struct {
	Reason error
}

func (u Unconfigured) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("%w: %v", ErrUnconfigured, u.Reason)
}

// NewGenerator builds the backend named by cfg.Provider. It never fails: a
// missing credential or a construction error yields Unconfigured.
func NewGenerator(ctx context.Context, cfg LLMConfig) Generator {
	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}

	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return Unconfigured{Reason: errors.New("GEMINI_API_KEY not found in environment")}
		}
		g, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return Unconfigured{Reason: err}
		}
		return g
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Unconfigured{Reason: errors.New("OPENAI_API_KEY not found in environment")}
		}
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model)
	case ProviderArk:
		if cfg.ArkAPIKey == "" {
			return Unconfigured{Reason: errors.New("ARK_API_KEY not found in environment")}
		}
		if model == "" {
			return Unconfigured{Reason: errors.New("LLM_MODEL must name an Ark endpoint")}
		}
		g, err := NewArkGenerator(ctx, cfg.ArkAPIKey, cfg.ArkBaseURL, model)
		if err != nil {
			return Unconfigured{Reason: err}
		}
		return g
	case ProviderOllama:
		return NewOllamaGenerator(cfg.OllamaURL, model)
	default:
		return Unconfigured{Reason: fmt.Errorf("unknown provider %q", cfg.Provider)}
	}
}

// --- Gemini ---

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0)
	thinking := int32(0)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: verdictMaxTokens,
		ThinkingConfig:  &genai.ThinkingConfig{ThinkingBudget: &thinking},
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return res.Text(), nil
}

// --- OpenAI compatible ---

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (o *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   verdictMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- Volcengine Ark (eino) ---

type ArkGenerator struct {
	model *ark.ChatModel
}

func NewArkGenerator(ctx context.Context, apiKey, baseURL, model string) (*ArkGenerator, error) {
	temp := float32(0)
	maxTokens := verdictMaxTokens
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       model,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Ark chat model: %w", err)
	}
	return &ArkGenerator{model: cm}, nil
}

func (a *ArkGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("ark generate: %w", err)
	}
	return msg.Content, nil
}

// --- Ollama ---

type OllamaRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  OllamaOptions   `json:"options"`
}

type OllamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type OllamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OllamaResponse struct {
	Message OllamaMessage `json:"message"`
}

type OllamaGenerator struct {
	url    string
	model  string
	client *http.Client
}

func NewOllamaGenerator(url, model string) *OllamaGenerator {
	return &OllamaGenerator{url: url, model: model, client: &http.Client{}}
}

func (o *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := OllamaRequest{
		Model:    o.model,
		Messages: []OllamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  OllamaOptions{Temperature: 0, NumPredict: verdictMaxTokens},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ollamaResp OllamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return "", fmt.Errorf("JSON parse error: %w | Raw Body: %s", err, string(body))
	}
	return ollamaResp.Message.Content, nil
}
