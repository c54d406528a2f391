// ABOUTME: Transcript export to Markdown and standalone HTML
// ABOUTME: HTML is the Markdown document rendered with goldmark inside a minimal page

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/coven-chat/internal/transcript"
)

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "md", "markdown" or "html".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want md or html)", s)
	}
}

// Write exports messages in the given format.
func Write(w io.Writer, format Format, title string, messages []transcript.Message) error {
	switch format {
	case FormatMarkdown:
		return Markdown(w, messages)
	case FormatHTML:
		return HTML(w, title, messages)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Markdown writes one section per message: a heading naming the author,
// the content, then any attachments by filename.
func Markdown(w io.Writer, messages []transcript.Message) error {
	var buf bytes.Buffer
	for i, m := range messages {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "## %s\n\n", heading(m))

		content := strings.TrimRight(m.Content, "\n")
		if content != "" {
			buf.WriteString(content)
			buf.WriteString("\n")
		}

		if len(m.Attachments) > 0 {
			if content != "" {
				buf.WriteString("\n")
			}
			buf.WriteString("Attachments:\n\n")
			for _, a := range m.Attachments {
				if a.URL != "" {
					fmt.Fprintf(&buf, "- [%s](%s)\n", attachmentName(a), a.URL)
				} else {
					fmt.Fprintf(&buf, "- %s\n", attachmentName(a))
				}
			}
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
h2 { font-size: 1rem; color: #555; border-top: 1px solid #ddd; padding-top: 1rem; }
pre { background: #f5f5f5; padding: .75rem; overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
</body>
</html>
`))

// HTML renders the Markdown export with goldmark and wraps it in a page.
// Raw HTML in message content is not passed through.
func HTML(w io.Writer, title string, messages []transcript.Message) error {
	var md bytes.Buffer
	if err := Markdown(&md, messages); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}

	if title == "" {
		title = "Conversation"
	}
	data := struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()),
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	return nil
}

func heading(m transcript.Message) string {
	switch m.Role {
	case transcript.RoleUser:
		return "You"
	case transcript.RoleAssistant:
		return m.Agent.DisplayName("Assistant")
	case transcript.RoleSystem:
		return "System"
	default:
		return string(m.Role)
	}
}

func attachmentName(a transcript.Attachment) string {
	if a.Filename != "" {
		return a.Filename
	}
	return a.FileID
}
