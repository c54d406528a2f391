// Package history browses past chat sessions and loads them into the live
// conversation.
//
// Loaded sessions get stable message ids of the form hist_<session>_<index>
// and, when a cache is configured, are written to the local store so they
// can be reopened offline with OpenCached.
package history
