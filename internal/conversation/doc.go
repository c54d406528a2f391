// Package conversation reconciles a locally optimistic chat transcript with
// the backend's event stream.
//
// # Overview
//
// The package owns the in-memory state of the conversation currently on
// screen. It accepts pending user messages before the server confirms them,
// applies decoded stream events in order, and publishes immutable snapshots
// to observers.
//
// # Session
//
// Session is the façade used by the rest of the application:
//
//	sess := conversation.NewSession(conversation.WithErrorHandler(showError))
//
// Key operations:
//
//   - SendMessage(content, attachments): Append an optimistic user message
//   - ApplyIncomingEvent(event): Feed one decoded stream event
//   - ReportStreamFailure(msg): Abort the turn after a transport failure
//   - LoadFromHistory(messages, sessionID, agent): Replace state wholesale
//   - Reset(sessionID): Start a new chat
//   - State() / Subscribe(ctx): Read snapshots
//
// Session does not open connections. The caller streams the response and
// feeds events back in decode order.
//
// # Reconciler
//
// Reconciler.Apply is the (state, event) -> state transform behind
// ApplyIncomingEvent:
//
//   - user_message_receipt: rewrite the oldest provisional user message id
//   - assistant_message_start: append a pending assistant message, with a
//     system hand-off notice first when the agent changes
//   - stream_start / stream_end: add or remove the id from ActiveStreams
//   - content_chunk: replace pending content, append otherwise
//   - assistant_attachment: append attachments
//   - progress: replace the message's progress sub-state
//   - error: clear IsLoading and every active stream
//
// Events that reference an unknown message are dropped without touching
// state, so stragglers arriving after Reset are harmless.
//
// # Snapshots
//
// State values share structure but are never modified in place. Subscribers
// receive the current snapshot first and then one per change. A subscriber
// that falls behind skips intermediate snapshots but always receives the
// newest one.
package conversation
