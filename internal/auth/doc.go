// Package auth manages the bearer token coven-chat sends to the backend.
//
// # Token Source
//
// Source resolves the token for every request:
//
//  1. The COVEN_TOKEN environment variable, if set
//  2. The token saved in the local store by "coven-chat login"
//
// Source satisfies client.TokenSource, so it can be handed straight to the
// HTTP client.
//
// # Inspection
//
// Tokens are issued by the auth service and signed with a key the client
// never sees. Inspect therefore parses JWT claims without verifying the
// signature and is used only to report an expired token before a request
// is made. Opaque (non-JWT) tokens are accepted as-is.
//
//	if err := auth.Check(token, time.Now()); errors.Is(err, auth.ErrExpiredToken) {
//	    // ask the user to log in again
//	}
package auth
