// Package realtime pushes change hints to websocket subscribers.
//
// Every committed track or music generation change is published to three
// topics: content_{id}_tracks, content_{id}_notifications and record_{id}.
// Delivery is at most once with no ordering across topics; a subscriber that
// cannot keep up is disconnected. With Redis configured, publishes go through
// a pub/sub channel so every instance delivers to its own subscribers.
package realtime
