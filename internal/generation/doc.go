// Package generation defines the boundary between the application core and
// the external music generation provider: task submission, the events the
// provider reports back, the shared error taxonomy used to decide whether a
// failure may be retried, and the policy that maps a requested duration to a
// number of provider tasks.
package generation
