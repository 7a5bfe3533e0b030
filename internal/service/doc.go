// Package service contains the application use cases. It coordinates domain
// entities, the stores in internal/store and the external providers to
// fulfill application features.
//
// Key components:
//
//   - QuotaGuard: atomic per-Content track reservation inside a unit of work
//   - Dispatcher: turns a generation request into provider tasks and pending
//     MusicGeneration and Track records
//   - Reconciler: applies provider task events idempotently under a row lock
//   - Poller: fetches outstanding provider tasks for missed webhooks
//   - ThumbnailService: artwork originals, the youtube thumbnail derivative
//     job and the non-persisting preview
//   - OAuthManager: the video platform authorization handshake and token
//     refresh
//   - ContentService: Content creation, details and user deletions
//
// Services receive their dependencies through constructors and publish
// committed changes through events.ChangePublisher after the unit of work
// commits. Known conditions are returned as sentinel errors; unexpected
// errors are wrapped in ServiceError.
package service
