// Package journal provides the append-only, crash-safe log backing the broker.
//
// The journal is the source of truth for recovery: the in-memory queue and
// in-flight set are caches rebuilt from it. Two line-delimited JSON files live
// under the journal directory:
//   - queue.jsonl: every send, receive, ack, retry and dlq transition
//   - dlq.jsonl: a permanent copy of dlq events, retained for inspection,
//     never replayed into the live queue
//
// Appends are synced to disk before they return, so a crash between an
// in-memory mutation and its journal record is not observable. Replay is
// last-write-wins per envelope id and tolerates corrupt trailing lines.
package journal
