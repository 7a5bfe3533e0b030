// Package api exposes the HTTP surface: content and generation endpoints,
// artwork uploads, the YouTube connection flow, the provider webhook and the
// realtime websocket. Handlers translate requests into service calls and map
// service errors onto status codes and machine-readable error codes.
package api
