package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/cadence-api/internal/config"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// ErrEmptyTheme is returned when there is nothing to write a prompt from.
var ErrEmptyTheme = errors.New("theme cannot be empty")

// maxPromptRunes matches the provider's prompt limit in non-custom mode.
const maxPromptRunes = 400

const defaultTemplate = `Write one prompt for an AI music generator.
Theme: {{.Theme}}
The tracks will be assembled into a continuous {{.DurationMinutes}} minute mix.
Describe genre, instrumentation, mood and tempo in a single sentence under 60 words.
Reply with the prompt only.`

const systemInstruction = "You write concise prompts for instrumental music generation."

type promptData struct {
	Theme           string
	DurationMinutes int
}

// contentGenerator is the part of *genai.Models the writer calls.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Writer implements generation.PromptWriter.
type Writer struct {
	models     contentGenerator
	model      string
	template   *template.Template
	maxRetries uint64
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ generation.PromptWriter = (*Writer)(nil)

// NewWriter creates a Writer with a Gemini API client.
func NewWriter(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Writer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return newWriter(client.Models, cfg.ModelName, logger), nil
}

func newWriter(models contentGenerator, model string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		models:     models,
		model:      model,
		template:   template.Must(template.New("prompt").Parse(defaultTemplate)),
		maxRetries: 2,
		baseDelay:  time.Second,
		logger:     logger.With(slog.String("component", "prompt_writer")),
	}
}

// WritePrompt implements generation.PromptWriter.
func (w *Writer) WritePrompt(ctx context.Context, theme string, durationMinutes int) (string, error) {
	log := logger.FromContextOrDefault(ctx, w.logger)
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return "", ErrEmptyTheme
	}

	var buf bytes.Buffer
	if err := w.template.Execute(&buf, promptData{Theme: theme, DurationMinutes: durationMinutes}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		MaxOutputTokens:   200,
	}

	backoff := retry.WithMaxRetries(w.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(w.baseDelay)))
	attempt := 0
	var prompt string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, err := w.models.GenerateContent(ctx, w.model, genai.Text(buf.String()), cfg)
		if err != nil {
			log.Warn("gemini call failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(fmt.Errorf("%w: %v", generation.ErrNetwork, err))
		}
		text, err := responseText(resp)
		if err != nil {
			return err
		}
		prompt = text
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Debug("wrote prompt",
		slog.Int("attempts", attempt),
		slog.Int("prompt_length", len(prompt)))
	return prompt, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrInvalidResponse)
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.Trim(strings.TrimSpace(sb.String()), `"`)
	if text == "" {
		return "", fmt.Errorf("%w: empty prompt", generation.ErrInvalidResponse)
	}
	if r := []rune(text); len(r) > maxPromptRunes {
		text = string(r[:maxPromptRunes])
	}
	return text, nil
}
