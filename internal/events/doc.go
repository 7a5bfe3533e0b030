// Package events decouples services from the background and realtime layers.
//
// Two kinds of event flow through an InMemoryEventEmitter:
//   - TaskRequestEvent asks for a background task (thumbnail derivatives,
//     provider polls) without the service importing the task package.
//   - ChangeEvent announces a committed state change of a track, music
//     generation or artwork. Change delivery is best effort.
package events
