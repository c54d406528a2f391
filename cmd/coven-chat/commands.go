// ABOUTME: One-shot coven-chat subcommands
// ABOUTME: sessions, show, export, agents, me, login, logout and settings

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/export"
	"github.com/2389/coven-chat/internal/store"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var (
		cached bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List past chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if cached {
				return printCachedSessions(cmd.Context(), a, limit)
			}

			hist := a.newHistory(a.newSession())
			if err := hist.LoadSessions(cmd.Context()); err != nil {
				return err
			}
			printSessions(a.out, hist.Sessions(), "", limit)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "list sessions cached locally instead of asking the server")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n sessions (0 for all)")
	return cmd
}

// printSessions lists sessions, marking selected with an asterisk.
func printSessions(w io.Writer, sessions []client.SessionPreview, selected string, limit int) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions yet.")
		return
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCREATED\tMESSAGES\tPREVIEW")
	for _, s := range sessions {
		created := s.CreatedAt
		if t, ok := s.Created(); ok {
			created = t.Local().Format("Jan 02 15:04")
		}
		id := s.SessionID
		if id == selected {
			id = "* " + id
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, created, s.MessageCount, truncate(s.FirstMessagePreview, 60))
	}
	tw.Flush()
}

func printCachedSessions(ctx context.Context, a *app, limit int) error {
	infos, err := a.store.ListTranscripts(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing cached sessions: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(a.out, "No cached sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tUPDATED\tMESSAGES")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", info.SessionID, info.UpdatedAt.Local().Format("Jan 02 15:04"), info.MessageCount)
	}
	return tw.Flush()
}

// openSession loads one session into a fresh conversation, from the local
// cache when offline is set.
func openSession(ctx context.Context, a *app, sessionID string, offline bool) (*conversation.Session, error) {
	session := a.newSession()
	hist := a.newHistory(session)

	var err error
	if offline {
		err = hist.OpenCached(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("session %s is not cached locally", sessionID)
		}
	} else {
		a.loadAgents(ctx)
		err = hist.SelectSession(ctx, sessionID)
	}
	if err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the transcript of a past session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := openSession(cmd.Context(), a, args[0], offline)
			if err != nil {
				return err
			}
			defer session.Close()

			a.newRenderer(cmd.Context()).Render(session.State())
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "read the locally cached copy")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format  string
		output  string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session as Markdown or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := openSession(cmd.Context(), a, args[0], offline)
			if err != nil {
				return err
			}
			defer session.Close()

			w := a.out
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer file.Close()
				w = file
			}

			messages := session.State().Messages.Messages()
			if !offline {
				messages = a.downloadURLs(cmd.Context(), messages)
			}

			title := "Session " + args[0]
			if err := export.Write(w, f, title, messages); err != nil {
				return fmt.Errorf("exporting session: %w", err)
			}
			if w != a.out {
				a.logger.Info("session exported", "session_id", args[0], "path", output, "format", string(f))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "md", "export format: md or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&offline, "offline", false, "export the locally cached copy")
	return cmd
}

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents [query]",
		Short: "List available agents, optionally filtered by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.agents.Load(cmd.Context(), a.api); err != nil {
				return err
			}

			agents := a.agents.All()
			if len(args) == 1 {
				agents = a.agents.Search(args[0])
			}
			printAgents(a.out, agents)
			return nil
		},
	}
}

func printAgents(w io.Writer, agents []client.Agent) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tDESCRIPTION")
	for _, ag := range agents {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ag.ID, ag.Name, ag.Role, truncate(ag.Description, 60))
	}
	tw.Flush()
}

func newMeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			me, err := a.newRefresher().Refresh(cmd.Context())
			if err != nil {
				return err
			}
			printAccount(a.out, me)
			return nil
		},
	}
}

func printAccount(w io.Writer, me *client.UserDetails) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintln(w, me.Name)
	fmt.Fprintf(w, "  Email:  %s\n", me.Email)
	fmt.Fprintf(w, "  Coins:  %.2f\n", me.Coins)
	fmt.Fprintf(w, "  Plan:   %s\n", me.PlanName())
	if me.SubscriptionStatus != "" {
		fmt.Fprintf(w, "  Status: %s\n", me.SubscriptionStatus)
	}
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a bearer token for the chat backend",
		Long:  "Saves a bearer token in the local database. Without --token the token is read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("reading token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return auth.ErrNoToken
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tokens.Save(cmd.Context(), token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}

			green := color.New(color.FgGreen)
			green.Fprintln(a.out, "  ✓ Token saved")
			if claims, err := auth.Inspect(token); err == nil && claims.IsJWT {
				if claims.Subject != "" {
					fmt.Fprintf(a.out, "  Subject: %s\n", claims.Subject)
				}
				if !claims.ExpiresAt.IsZero() {
					fmt.Fprintf(a.out, "  Expires: %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "bearer token (read from stdin when omitted)")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tokens.ClearToken(cmd.Context()); err != nil {
				return fmt.Errorf("clearing token: %w", err)
			}
			fmt.Fprintln(a.out, "Logged out.")
			if a.tokens.Origin() == "env" {
				color.New(color.FgYellow).Fprintf(a.out, "  %s is still set in the environment\n", auth.EnvToken)
			}
			return nil
		},
	}
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "settings [key [value]]",
		Short: "Show or change display preferences",
		Long:  "Without arguments prints every preference. With a key prints one. With a key and value stores it.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			settings, err := a.store.LoadSettings(ctx)
			if err != nil {
				return err
			}

			switch len(args) {
			case 0:
				for _, kv := range settings.Pairs() {
					fmt.Fprintf(a.out, "%s = %s\n", kv[0], kv[1])
				}
			case 1:
				for _, kv := range settings.Pairs() {
					if kv[0] == args[0] {
						fmt.Fprintln(a.out, kv[1])
						return nil
					}
				}
				return fmt.Errorf("%w: unknown key %q", store.ErrInvalidSetting, args[0])
			case 2:
				if err := a.store.SetSetting(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s = %s\n", args[0], args[1])
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
