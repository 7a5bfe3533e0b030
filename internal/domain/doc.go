// Package domain contains the core business entities, value objects, and
// domain logic of the application: contents, music generations and their
// track variants, artwork derivatives, and video platform credentials.
//
// Every asynchronous record shares one lifecycle, Status, whose permitted
// moves are enumerated in CanTransitionTo. Entities expose TransitionTo
// methods that refuse anything else, so callers cannot write an arbitrary
// status string.
package domain
