// Package musicapi implements generation.Provider against a Suno-compatible
// music generation HTTP API.
//
// Every request is paced by a client-side rate limiter and retried with
// bounded, jittered exponential backoff when the failure is transient
// (rate limiting, network errors, timeouts). Authentication, credit and
// request errors are returned on the first attempt. Provider error text is
// kept inside generation.ProviderError for logs only.
package musicapi
