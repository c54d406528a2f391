// ABOUTME: Terminal rendering of conversation snapshots
// ABOUTME: Prints only what changed since the previous snapshot so streamed text appears incrementally

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/transcript"
)

var (
	agentColor    = color.New(color.FgCyan, color.Bold)
	userColor     = color.New(color.FgGreen, color.Bold)
	handoffColor  = color.New(color.FgYellow)
	progressColor = color.New(color.FgHiBlack)
	errorColor    = color.New(color.FgRed)
)

// renderer turns a sequence of snapshots into terminal output. Messages are
// tracked by ClientID, which survives the server id rewrite.
type renderer struct {
	mu  sync.Mutex
	out io.Writer

	printed  map[string]int    // ClientID -> bytes of content written
	headers  map[string]bool   // ClientID -> header written
	closed   map[string]bool   // ClientID -> final newline written
	streamed map[string]bool   // ClientID -> seen in ActiveStreams
	progress map[string]string // ClientID -> last progress line
	open     string            // ClientID of the message mid-line, if any
	loading  bool

	// previews lists each attachment by name; otherwise only a count is shown.
	previews bool
}

func newRenderer(out io.Writer) *renderer {
	r := &renderer{out: out, previews: true}
	r.clear()
	return r
}

func (r *renderer) clear() {
	r.printed = make(map[string]int)
	r.headers = make(map[string]bool)
	r.closed = make(map[string]bool)
	r.streamed = make(map[string]bool)
	r.progress = make(map[string]string)
	r.open = ""
}

// Render prints the difference between st and what was already printed.
// Live user messages still carry a provisional ClientID and are skipped,
// since the terminal already echoed them.
func (r *renderer) Render(st conversation.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Messages.Len() == 0 {
		r.endLine()
		r.clear()
	}

	for i := range st.Messages.Len() {
		m := st.Messages.At(i)
		key := m.ClientID
		if key == "" {
			key = m.ID
		}

		switch m.Role {
		case transcript.RoleUser:
			if strings.HasPrefix(key, transcript.ProvisionalPrefix) || r.closed[key] {
				continue
			}
			r.endLine()
			userColor.Fprint(r.out, "you › ")
			fmt.Fprintln(r.out, m.Content)
			r.printAttachments(m)
			r.closed[key] = true

		case transcript.RoleSystem:
			if r.closed[key] {
				continue
			}
			r.endLine()
			handoffColor.Fprintf(r.out, "── %s\n", m.Content)
			r.closed[key] = true

		case transcript.RoleAssistant:
			r.renderAssistant(key, m, st.ActiveStreams.Contains(m.ID), st.Busy())
		}
	}

	if st.IsLoading && !r.loading {
		r.endLine()
		progressColor.Fprintln(r.out, "  …")
	}
	r.loading = st.IsLoading
}

// renderAssistant closes a message once its stream has ended, or once the
// turn has settled for messages that were never seen streaming.
func (r *renderer) renderAssistant(key string, m transcript.Message, streaming, busy bool) {
	if r.closed[key] {
		return
	}
	if streaming {
		r.streamed[key] = true
	}

	if m.Progress != nil {
		line := formatProgress(m.Progress)
		if line != r.progress[key] {
			r.endLine()
			progressColor.Fprintf(r.out, "  ⋯ %s\n", line)
			r.progress[key] = line
		}
	}

	if m.IsPending {
		return
	}

	if !r.headers[key] {
		r.endLine()
		agentColor.Fprintf(r.out, "%s › ", m.Agent.DisplayName("Assistant"))
		r.headers[key] = true
		r.open = key
	}

	if done := r.printed[key]; done < len(m.Content) {
		delta := m.Content[done:]
		if r.open != key {
			r.endLine()
			agentColor.Fprintf(r.out, "%s › ", m.Agent.DisplayName("Assistant"))
			r.open = key
		}
		fmt.Fprint(r.out, delta)
		r.printed[key] = len(m.Content)
	}

	if !streaming && (r.streamed[key] || !busy) {
		if r.open == key {
			fmt.Fprintln(r.out)
			r.open = ""
		}
		r.printAttachments(m)
		r.closed[key] = true
	}
}

func (r *renderer) printAttachments(m transcript.Message) {
	if !r.previews {
		switch n := len(m.Attachments); n {
		case 0:
		case 1:
			progressColor.Fprintln(r.out, "  📎 1 attachment")
		default:
			progressColor.Fprintf(r.out, "  📎 %d attachments\n", n)
		}
		return
	}
	for _, a := range m.Attachments {
		name := a.Filename
		if name == "" {
			name = a.FileID
		}
		progressColor.Fprintf(r.out, "  📎 %s\n", name)
	}
}

// endLine terminates a partially written assistant line.
func (r *renderer) endLine() {
	if r.open != "" {
		fmt.Fprintln(r.out)
		r.open = ""
	}
}

func formatProgress(p *transcript.Progress) string {
	var b strings.Builder
	if p.AgentName != "" {
		b.WriteString(p.AgentName)
		b.WriteString(": ")
	}
	b.WriteString(p.Message)
	if p.Total > 0 {
		fmt.Fprintf(&b, " (%.0f/%.0f)", p.Progress, p.Total)
	}
	return b.String()
}

func printError(w io.Writer, message string) {
	errorColor.Fprintf(w, "  ✗ %s\n", message)
}
