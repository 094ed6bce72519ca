// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [SensorLine]: Blocks until the next transition on the knock sensor line
//   - [Notifier]: Reports one activation to the remote backend
//   - [Camera]: Produces raw frames on request
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with GPIO,
// GStreamer, HTTP and zerolog.
package ports
