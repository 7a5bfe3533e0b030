// Package gemini implements generation.PromptWriter on Google's Gemini API.
//
// The writer turns a Content theme and requested duration into a short
// music provider prompt. Calls are retried on transient failures with
// jittered exponential backoff; content blocked by safety filters and empty
// responses are permanent.
package gemini
