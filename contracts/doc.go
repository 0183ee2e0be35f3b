// Package contracts provides the core message types for the combus broker.
//
// This package defines the Envelope, the single unit of addressed, typed,
// timestamped data that flows through the bus:
//   - Envelope: immutable-once-created message record with payload and metadata
//   - MessageType: the closed set of envelope types (task, event, reply, log)
//   - Validate / FromRecord / ToRecord: the canonical wire form and its checks
//
// Envelopes serialize to a flat mapping so that journal lines stay readable
// and individually parseable. FromRecord is the exact inverse of ToRecord.
package contracts
