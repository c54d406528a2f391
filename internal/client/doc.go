// Package client implements the HTTP client for the chat backend.
//
// # Overview
//
// Two services are involved: the auth service (account details) and the
// API service (chat, sessions, history, files, agents). Both take a bearer
// token supplied by a TokenSource.
//
// # Endpoints
//
//   - StreamChat: POST /api/v1/chat, NDJSON response fed to an EventSink
//   - CreateSession: POST /api/v1/sessions
//   - ListSessions: GET /api/v1/history/sessions
//   - GetSession: GET /api/v1/history/sessions/{id}
//   - StageFile: POST /api/v1/files/stage
//   - UploadFile: multipart POST to the presigned upload URL
//   - PresignedURL: GET /api/v1/files/{id}
//   - ListAgents: GET /api/v1/admin/agents/ (public)
//   - GetMe: GET {auth}/api/v1/users/me
//
// # Errors
//
// Non-2xx responses are returned as *StatusError. 401 and 403 also match
// ErrUnauthorized with errors.Is. A missing token fails with ErrMissingToken
// before any request is sent.
//
// # Streaming
//
// StreamChat decodes the response incrementally and calls the sink once per
// event, in order, on the calling goroutine:
//
//	err := c.StreamChat(ctx, client.ChatRequest{Message: "hi", SessionID: id}, session)
//
// Unary requests are bounded by the configured timeout. Streams are instead
// bounded by an idle timeout that resets whenever bytes arrive.
package client
