package musicapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
)

// envelope wraps every provider response body.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

type recordInfo struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []recordTrack `json:"sunoData"`
	} `json:"response"`
}

type recordTrack struct {
	AudioURL string  `json:"audioUrl"`
	Prompt   string  `json:"prompt"`
	Title    string  `json:"title"`
	Tags     string  `json:"tags"`
	Duration float64 `json:"duration"`
}

type callbackData struct {
	CallbackType string          `json:"callbackType"`
	TaskID       string          `json:"task_id"`
	Data         []callbackTrack `json:"data"`
}

type callbackTrack struct {
	AudioURL string  `json:"audio_url"`
	Prompt   string  `json:"prompt"`
	Title    string  `json:"title"`
	Tags     string  `json:"tags"`
	Duration float64 `json:"duration"`
}

// recordStatus maps the provider's task status vocabulary onto the lifecycle.
func recordStatus(s string) (domain.Status, error) {
	switch strings.ToUpper(s) {
	case "PENDING":
		return domain.StatusPending, nil
	case "TEXT_SUCCESS", "FIRST_SUCCESS":
		return domain.StatusProcessing, nil
	case "SUCCESS":
		return domain.StatusCompleted, nil
	case "CREATE_TASK_FAILED", "GENERATE_AUDIO_FAILED", "CALLBACK_EXCEPTION", "SENSITIVE_WORD_ERROR":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown task status %q", generation.ErrInvalidResponse, s)
	}
}

// callbackStatus maps a webhook callbackType onto the lifecycle.
func callbackStatus(t string) (domain.Status, error) {
	switch strings.ToLower(t) {
	case "text", "first":
		return domain.StatusProcessing, nil
	case "complete":
		return domain.StatusCompleted, nil
	case "error":
		return domain.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown callback type %q", generation.ErrInvalidResponse, t)
	}
}

// recordResults keeps the provider's order, since results are matched to
// placeholders by variant index. A variant without audio stays in place with
// an empty AudioURL.
func recordResults(tracks []recordTrack) []generation.TrackResult {
	out := make([]generation.TrackResult, len(tracks))
	for i, t := range tracks {
		out[i] = generation.TrackResult{
			AudioURL:        t.AudioURL,
			DurationSeconds: t.Duration,
			Title:           t.Title,
			Tags:            t.Tags,
			Prompt:          t.Prompt,
		}
	}
	return out
}

func callbackResults(tracks []callbackTrack) []generation.TrackResult {
	out := make([]generation.TrackResult, len(tracks))
	for i, t := range tracks {
		out[i] = generation.TrackResult{
			AudioURL:        t.AudioURL,
			DurationSeconds: t.Duration,
			Title:           t.Title,
			Tags:            t.Tags,
			Prompt:          t.Prompt,
		}
	}
	return out
}

// ParseCallback converts a webhook body into a TaskEvent. A non-200 envelope
// code is reported as a failed task.
func ParseCallback(body []byte) (*generation.TaskEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidEvent, err)
	}

	var data callbackData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", generation.ErrInvalidEvent, err)
		}
	}

	event := &generation.TaskEvent{
		TaskID: data.TaskID,
		Source: generation.SourceWebhook,
		Raw:    json.RawMessage(body),
	}

	if env.Code != 200 {
		event.Status = domain.StatusFailed
		event.Error = env.Msg
	} else {
		status, err := callbackStatus(data.CallbackType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", generation.ErrInvalidEvent, err)
		}
		event.Status = status
		if status == domain.StatusFailed {
			event.Error = env.Msg
		}
		if status == domain.StatusCompleted {
			event.Results = callbackResults(data.Data)
		}
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}
