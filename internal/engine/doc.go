// Package engine routes visitor messages through the session state machine.
//
// # Message Flow
//
// Every inbound visitor message is persisted before any branching, so the
// transcript is complete even when the reply path fails. After persisting,
// the engine branches on session status:
//
//   - human_handoff / closed: return the static acknowledgment, no
//     automated reply
//   - active, handoff keyword match (and handoff enabled): transition to
//     human_handoff, record the marker message, notify the events sink
//   - active otherwise: run the Replier under a bounded timeout, falling
//     back to a canned reply on failure
//
// # Handoff Guarantees
//
// A session transitions to human_handoff at most once. Two mechanisms
// enforce this together: a per-session mutex serializes ingest within one
// process, and the store's conditional status update (active only) settles
// races across processes. The losing call degrades to the acknowledgment
// and writes no second marker.
//
// Keyword matching is a case-insensitive substring check over the tenant's
// comma-separated keyword list. See MatchesKeyword for why substring
// semantics are kept.
package engine
