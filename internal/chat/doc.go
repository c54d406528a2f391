// Package chat runs conversation turns against the chat backend.
//
// A Runner ties the live conversation.Session to the transport:
//
//	runner := chat.NewRunner(apiClient, session,
//	    chat.WithGuard(dedupe.New(2*time.Second, 256)),
//	    chat.WithPostTurnHook(refresher.AfterTurn),
//	)
//	err := runner.Send(ctx, "hello", nil)
//
// Each Send creates a backend session when needed, appends the optimistic
// user message, then feeds every stream event into the session. Turns are
// serialized. A failed turn is reported to the session so its error callback
// fires and the loading flag clears.
package chat
