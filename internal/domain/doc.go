// Package domain contains the core domain entities and value objects for knockcam.
//
// This package represents the innermost layer of the application. It has
// no dependencies on infrastructure concerns (GPIO, HTTP, cameras, logging)
// and contains only plain values and their invariants.
//
// # Entities
//
//   - [Edge]: a single transition observed on the sensor line
//   - [ActivationEvent]: one confirmed physical knock
//   - [DispatchOutcome]: the classified result of one notification attempt
//
// None of these are persisted; all state is rebuilt from hardware and
// configuration at startup.
package domain
