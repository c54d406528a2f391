// ABOUTME: Interactive chat REPL
// ABOUTME: Reads lines from stdin, runs turns and renders session snapshots as they stream in

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/account"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/transcript"
)

const replHelp = `Commands:
  /new             start a new conversation
  /sessions        list past sessions
  /open <id>       open a past session
  /agents [query]  list agents
  /attach <path>   attach a file to the next message
  /me              show account and coin balance
  /logout          forget the saved token and exit
  /help            show this help
  /quit            exit`

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return runChat(cmd.Context(), a, cmd.InOrStdin(), sessionID)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume a past session")
	return cmd
}

// repl holds the per-run state of an interactive chat.
type repl struct {
	app       *app
	session   *conversation.Session
	history   *history.Service
	refresher *account.Refresher
	runner    *chat.Runner
	render    *renderer
	pending   []transcript.Attachment

	flushes  chan chan struct{}
	rendered chan struct{}
}

func runChat(ctx context.Context, a *app, in io.Reader, sessionID string) error {
	a.loadAgents(ctx)

	session := a.newSession()
	defer session.Close()

	refresher := a.newRefresher()
	runner, release := a.newRunner(session, refresher)
	defer release()

	r := &repl{
		app:       a,
		session:   session,
		history:   a.newHistory(session),
		refresher: refresher,
		runner:    runner,
		render:    a.newRenderer(ctx),
	}

	loopCtx, stop := context.WithCancel(ctx)
	snapshots, _ := session.Subscribe(loopCtx)
	r.flushes = make(chan chan struct{})
	r.rendered = make(chan struct{})
	go r.renderLoop(snapshots)
	defer func() {
		stop()
		<-r.rendered
	}()

	if sessionID != "" {
		if err := r.history.SelectSession(ctx, sessionID); err != nil {
			printError(a.out, err.Error())
		}
		r.flush()
	}

	color.New(color.FgHiBlack).Fprintln(a.out, "Type a message, or /help for commands.")

	lines := readLines(loopCtx, in)
	for {
		prompt(a.out, len(r.pending))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func prompt(w io.Writer, attachments int) {
	if attachments > 0 {
		color.New(color.FgHiBlack).Fprintf(w, "[%d attached] ", attachments)
	}
	userColor.Fprint(w, "› ")
}

// readLines feeds stdin lines into a channel so the REPL can also watch ctx.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// renderLoop is the only caller of the renderer while the REPL runs, so
// snapshots are printed strictly in publish order.
func (r *repl) renderLoop(snapshots <-chan conversation.State) {
	defer close(r.rendered)
	for {
		select {
		case st, ok := <-snapshots:
			if !ok {
				return
			}
			r.render.Render(st)
		case ack := <-r.flushes:
			for drained := false; !drained; {
				select {
				case st, ok := <-snapshots:
					if !ok {
						close(ack)
						return
					}
					r.render.Render(st)
				default:
					drained = true
				}
			}
			close(ack)
		}
	}
}

// flush waits until every snapshot published so far has been rendered.
func (r *repl) flush() {
	ack := make(chan struct{})
	select {
	case r.flushes <- ack:
		<-ack
	case <-r.rendered:
	}
}

func (r *repl) send(ctx context.Context, content string) {
	attachments := r.pending
	fresh := r.session.State().SessionID == ""
	err := r.runner.Send(ctx, content, attachments)
	r.flush()

	switch {
	case err == nil:
		r.pending = nil
		if fresh {
			r.history.RefreshSessions(ctx)
		}
	case errors.Is(err, chat.ErrDuplicateSend):
		color.New(color.FgHiBlack).Fprintln(r.app.out, "  (duplicate message ignored)")
	case errors.Is(err, chat.ErrEmptyMessage):
	default:
		// The session error handler has already printed the failure.
		r.app.logger.Debug("turn failed", "error", err)
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	out := r.app.out

	switch name {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		fmt.Fprintln(out, replHelp)

	case "/new":
		r.history.NewSession()
		r.pending = nil
		r.flush()
		color.New(color.FgHiBlack).Fprintln(out, "  new conversation")

	case "/sessions":
		if r.history.Selected() == "" && len(r.history.Sessions()) == 0 {
			if err := r.history.LoadSessions(ctx); err != nil {
				printError(out, err.Error())
				return false
			}
		} else {
			r.history.RefreshSessions(ctx)
		}
		printSessions(out, r.history.Sessions(), r.history.Selected(), 20)

	case "/open":
		if arg == "" {
			printError(out, "usage: /open <session-id>")
			return false
		}
		if err := r.history.SelectSession(ctx, arg); err != nil {
			printError(out, err.Error())
		}
		r.flush()

	case "/agents":
		r.app.loadAgents(ctx)
		agents := r.app.agents.All()
		if arg != "" {
			agents = r.app.agents.Search(arg)
		}
		printAgents(out, agents)

	case "/attach":
		if arg == "" {
			printError(out, "usage: /attach <path>")
			return false
		}
		att, err := r.attach(ctx, arg)
		if err != nil {
			printError(out, err.Error())
			return false
		}
		r.pending = append(r.pending, att)
		color.New(color.FgHiBlack).Fprintf(out, "  📎 %s staged\n", att.Filename)

	case "/me":
		// Refreshed after every turn; fetch only when nothing is cached yet.
		me := r.refresher.Current()
		if me == nil {
			var err error
			if me, err = r.refresher.Refresh(ctx); err != nil {
				printError(out, err.Error())
				return false
			}
		}
		printAccount(out, me)

	case "/logout":
		if err := r.app.tokens.ClearToken(ctx); err != nil {
			printError(out, err.Error())
			return false
		}
		r.history.Clear()
		r.history.NewSession()
		r.pending = nil
		r.flush()
		fmt.Fprintln(out, "Logged out.")
		return true

	default:
		printError(out, fmt.Sprintf("unknown command %s (try /help)", name))
	}
	return false
}

func (r *repl) attach(ctx context.Context, path string) (transcript.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return transcript.Attachment{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return transcript.Attachment{}, err
	}
	if info.IsDir() {
		return transcript.Attachment{}, fmt.Errorf("%s is a directory", path)
	}

	contentType, err := detectContentType(f, path)
	if err != nil {
		return transcript.Attachment{}, err
	}
	return r.app.api.Attach(ctx, filepath.Base(path), contentType, info.Size(), f)
}

// detectContentType uses the extension when known, otherwise sniffs the
// first bytes. f is rewound afterwards.
func detectContentType(f *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}
