// Package memory implements the multi-tier memory core for a
// conversational companion.
//
// The core gives an agent continuity across turns and across sessions.
// All state is partitioned by UserID for multi-user support.
//
// Tiers:
//   - ShortTermBuffer: rolling window of verbatim turns plus a rolling
//     summary of everything older
//   - SemanticStore: durable embedding index with similarity search
//     (chromem-go locally, in-process fallback when no backend is available)
//   - Episodic records: chronologically ordered records of guided flows,
//     the authoritative source for the user's literal statements
//   - Profile: consolidated traits, preferences and goals per user
//
// Orchestration:
//   - Manager.Record ingests each exchange, scores importance and fans
//     out to the tiers
//   - Manager.BuildContext assembles one bounded context string from all
//     tiers, cache-checked with a TTL
//   - Manager.Restore rebuilds conversational state from the durable
//     tiers after a reconnect or restart
//
// Every external call carries a timeout and a degrade path: a failing
// tier reduces personalization for that turn, it never aborts the
// conversation.
package memory
