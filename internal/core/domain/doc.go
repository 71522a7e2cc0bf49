// Package domain defines the core domain models for storyline.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Moment: one recorded point of the narrative timeline
//   - Snapshot: the wire shape shared by session and save payloads
//   - Details, SaveRecord, DetailsRecord: slot-addressed save rows
//   - Settings: process-wide save preferences
//   - Errors: domain-specific error definitions
package domain
