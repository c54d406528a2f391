// Package export writes a conversation transcript as Markdown or as a
// standalone HTML page.
package export
