package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds a single summary request
const DefaultTimeout = 20 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

// ErrEmptySummary is returned when the model answers with nothing usable
var ErrEmptySummary = errors.New("empty summary")

// Analyzer summarizes incident logs with the OpenAI chat completion API
type Analyzer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewAnalyzer creates a new OpenAI-backed summarizer
func NewAnalyzer(apiKey, model string, timeout time.Duration) *Analyzer {
	return NewAnalyzerWithConfig(openai.DefaultConfig(apiKey), model, timeout)
}

// NewAnalyzerWithConfig allows pointing the client at a compatible endpoint
func NewAnalyzerWithConfig(cfg openai.ClientConfig, model string, timeout time.Duration) *Analyzer {
	if model == "" {
		model = defaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

// Summarize asks the model for a short incident summary of the given log lines
func (a *Analyzer) Summarize(ctx context.Context, lines []string, serviceName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	log.Printf("[AI] Summarizing %d log lines for %s\n", len(lines), serviceName)

	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildPrompt(lines, serviceName),
				},
			},
			Temperature: 0.2,
		},
	)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	summary := cleanSummary(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

const systemPrompt = `You are an on-call Site Reliability Engineer writing the first note on a freshly opened incident.

Read the application logs you are given and reply with:
1. One sentence describing what is failing
2. The most likely cause, if the logs show one
3. Up to three concrete next steps for the responder

Keep it under 120 words. Plain text only, no markdown headings.`

func buildPrompt(lines []string, serviceName string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Service: %s\n", serviceName))
	sb.WriteString(fmt.Sprintf("Log lines: %d (oldest first)\n\n", len(lines)))

	if len(lines) == 0 {
		sb.WriteString("No log lines were buffered.\n")
		return sb.String()
	}

	sb.WriteString("```\n")
	for _, line := range lines {
		sb.WriteString(line + "\n")
	}
	sb.WriteString("```\n")

	return sb.String()
}

// cleanSummary strips the code fences some models wrap their answer in
func cleanSummary(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```text")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
