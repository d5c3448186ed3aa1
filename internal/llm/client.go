// Package llm adapts an OpenAI-compatible chat completions API to the coach's
// Classifier and Generator interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"golang.org/x/time/rate"

	"github.com/ashureev/moodcoach/internal/coach"
	"github.com/ashureev/moodcoach/internal/domain"
)

const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultClassifierModel = "gpt-4o-mini"
	DefaultReplyModel      = "gpt-4o"
	DefaultHTTPTimeout     = 60 * time.Second
	DefaultMaxRetries      = 2

	classifyTemperature = 0.3
	replyTemperature    = 0.7
	replyMaxTokens      = 200
)

// Config holds connection settings for the chat completions API.
type Config struct {
	APIKey            string
	BaseURL           string
	ClassifierModel   string
	ReplyModel        string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	HTTPTimeout       time.Duration
	HTTPClient        *http.Client
}

// Client talks to the model for both classification and reply generation.
// Calls share one rate limiter.
type Client struct {
	api             openaigo.Client
	classifierModel string
	replyModel      string
	limiter         *rate.Limiter
	logger          *slog.Logger
}

var (
	_ coach.Classifier = (*Client)(nil)
	_ coach.Generator  = (*Client)(nil)
)

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("llm returned empty choices")

// New creates a Client. An API key is required.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm config incomplete: api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		api: openaigo.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(maxRetries),
			option.WithRequestTimeout(timeout),
		),
		classifierModel: orDefault(cfg.ClassifierModel, DefaultClassifierModel),
		replyModel:      orDefault(cfg.ReplyModel, DefaultReplyModel),
		limiter:         rate.NewLimiter(limit, burst),
		logger:          logger,
	}, nil
}

// Classify asks the model for a structured emotional read of message.
func (c *Client) Classify(ctx context.Context, message string, priorPatterns coach.PatternProfile) (domain.Analysis, error) {
	content, err := c.complete(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(c.classifierModel),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(classifySystemPrompt),
			openaigo.UserMessage(classifyUserPrompt(message, priorPatterns)),
		},
		Temperature: param.NewOpt(classifyTemperature),
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("classify: %w", err)
	}

	analysis, err := ParseAnalysis(content)
	if err != nil {
		c.logger.Warn("Classifier returned unparseable output", "error", err, "raw_len", len(content))
		return domain.Analysis{}, err
	}
	return analysis, nil
}

// Generate produces the coach's reply.
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []domain.ConversationTurn, message string) (string, error) {
	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openaigo.SystemMessage(systemPrompt))
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch turn.Role {
		case domain.RoleSystem:
			messages = append(messages, openaigo.SystemMessage(content))
		case domain.RoleAssistant:
			messages = append(messages, openaigo.AssistantMessage(content))
		default:
			messages = append(messages, openaigo.UserMessage(content))
		}
	}
	messages = append(messages, openaigo.UserMessage(message))

	content, err := c.complete(ctx, openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(c.replyModel),
		Messages:    messages,
		Temperature: param.NewOpt(replyTemperature),
		MaxTokens:   param.NewOpt(int64(replyMaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) complete(ctx context.Context, params openaigo.ChatCompletionNewParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	started := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	c.logger.Debug("Chat completion finished",
		"model", params.Model,
		"duration_ms", time.Since(started).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

const classifySystemPrompt = `You analyze short chat messages for emotional eating context.
Return ONLY a JSON object, no prose.`

func classifyUserPrompt(message string, profile coach.PatternProfile) string {
	var b strings.Builder
	b.WriteString("Analyze this message for emotional eating context:\n")
	b.WriteString(strconv.Quote(message))
	if !profile.Empty() {
		b.WriteString("\n\nUser's typical patterns:")
		if profile.DominantTrigger != "" {
			b.WriteString("\n- most common trigger: " + profile.DominantTrigger)
		}
		if profile.DominantEmotion != "" {
			b.WriteString("\n- most common emotion: " + profile.DominantEmotion)
		}
		if len(profile.RiskHours) > 0 {
			b.WriteString("\n- risk times: " + strings.Join(profile.RiskHours, ", "))
		}
		fmt.Fprintf(&b, "\n- average intensity: %.1f", profile.MeanIntensity)
	}
	b.WriteString(`

Return JSON with:
{
  "primaryEmotion": "emotion",
  "intensity": 1-10,
  "triggers": ["trigger1", "trigger2"],
  "eatingUrge": 1-10,
  "riskLevel": "low|medium|high",
  "context": "brief description",
  "confidence": 0.0-1.0
}`)
	return b.String()
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
