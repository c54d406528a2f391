// Package dedupe provides a time-windowed set of recently seen keys.
//
// The chat runner uses it as a double-submit guard: the same content sent
// to the same session within the window is rejected, and a key is
// forgotten again when its turn fails so the user can retry at once.
package dedupe
