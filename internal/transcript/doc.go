// Package transcript holds the conversation data model.
//
// # Overview
//
// A Transcript is the ordered, append-only list of messages for one chat
// session, indexed by message id for O(1) lookup. Streams is the set of
// message ids whose assistant response is still being written.
//
// Both types are persistent values: every mutating method returns a new
// value and leaves the receiver intact. The conversation package hands
// these values to observers as snapshots, so a subscriber holding an old
// snapshot never sees a half-applied update.
//
// # Identity
//
// Every Message has two identities:
//
//   - ID: server-assigned once confirmed. User messages start with a
//     provisional id prefixed "client_" which is rewritten exactly once.
//   - ClientID: fixed at creation and never rewritten. Renderers key on it.
package transcript
