package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/cadence-api/internal/config"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastText  string
	lastModel string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.lastText = contents[0].Parts[0].Text
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return f.responses[i], nil
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: s}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func testWriter(f *fakeModels) *Writer {
	w := newWriter(f, "gemini-test", nil)
	w.baseDelay = time.Millisecond
	return w
}

func TestWritePrompt(t *testing.T) {
	f := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(`  "Warm lofi beats with soft rain"  `)}}
	w := testWriter(f)

	got, err := w.WritePrompt(context.Background(), "rainy study session", 45)
	require.NoError(t, err)
	assert.Equal(t, "Warm lofi beats with soft rain", got)
	assert.Equal(t, "gemini-test", f.lastModel)
	assert.Contains(t, f.lastText, "Theme: rainy study session")
	assert.Contains(t, f.lastText, "45 minute")
}

func TestWritePromptRetriesTransportErrors(t *testing.T) {
	f := &fakeModels{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []*genai.GenerateContentResponse{nil, textResponse("ambient piano")},
	}
	got, err := testWriter(f).WritePrompt(context.Background(), "calm", 10)
	require.NoError(t, err)
	assert.Equal(t, "ambient piano", got)
	assert.Equal(t, 2, f.calls)
}

func TestWritePromptGivesUpAfterRetries(t *testing.T) {
	boom := errors.New("unavailable")
	f := &fakeModels{errs: []error{boom, boom, boom, boom}}
	_, err := testWriter(f).WritePrompt(context.Background(), "calm", 10)
	assert.ErrorIs(t, err, generation.ErrNetwork)
	assert.Equal(t, 3, f.calls)
}

func TestWritePromptPermanentFailures(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"no candidates", &genai.GenerateContentResponse{}},
		{"safety", blocked},
		{"blank text", textResponse("   ")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeModels{responses: []*genai.GenerateContentResponse{tc.resp}}
			_, err := testWriter(f).WritePrompt(context.Background(), "calm", 10)
			assert.ErrorIs(t, err, generation.ErrInvalidResponse)
			assert.Equal(t, 1, f.calls)
		})
	}
}

func TestWritePromptTruncates(t *testing.T) {
	f := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(strings.Repeat("a", 1000))}}
	got, err := testWriter(f).WritePrompt(context.Background(), "calm", 10)
	require.NoError(t, err)
	assert.Len(t, got, maxPromptRunes)
}

func TestWritePromptEmptyTheme(t *testing.T) {
	f := &fakeModels{}
	_, err := testWriter(f).WritePrompt(context.Background(), "  ", 10)
	assert.ErrorIs(t, err, ErrEmptyTheme)
	assert.Zero(t, f.calls)
}

func TestNewWriterValidatesConfig(t *testing.T) {
	_, err := NewWriter(context.Background(), config.LLMConfig{ModelName: "m"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewWriter(context.Background(), config.LLMConfig{GeminiAPIKey: "k"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
