package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiSummarizer summarizes incident logs with Google's Gemini models
type GeminiSummarizer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiSummarizer creates a Gemini client authenticated with apiKey
func NewGeminiSummarizer(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiSummarizer{client: client, model: model, timeout: timeout}, nil
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, lines []string, serviceName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	log.Printf("[AI] Summarizing %d log lines for %s with %s\n", len(lines), serviceName, g.model)

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(lines, serviceName)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	summary := cleanSummary(sb.String())
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

// Close releases the underlying client connection
func (g *GeminiSummarizer) Close() error {
	return g.client.Close()
}
