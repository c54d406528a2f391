// ABOUTME: Tests for transcript export
// ABOUTME: Checks Markdown layout and that HTML output escapes untrusted content

package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/transcript"
)

func sample() []transcript.Message {
	return []transcript.Message{
		{
			ID:      "u1",
			Role:    transcript.RoleUser,
			Content: "Summarize this",
			Attachments: []transcript.Attachment{
				{FileID: "f1", Filename: "report.pdf"},
				{FileID: "f2"},
			},
		},
		{
			ID:      "a1",
			Role:    transcript.RoleAssistant,
			Agent:   &transcript.AgentRef{Name: "Researcher"},
			Content: "**Bold** finding\n\n```\ncode\n```\n",
		},
		{ID: "system_a2", Role: transcript.RoleSystem, Content: "Researcher has left. Writer has joined."},
		{ID: "a2", Role: transcript.RoleAssistant, Content: "no agent"},
	}
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, sample()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "## You\n\nSummarize this\n"))
	assert.Contains(t, out, "Attachments:\n\n- report.pdf\n- f2\n")
	assert.Contains(t, out, "## Researcher\n\n**Bold** finding")
	assert.Contains(t, out, "## System\n\nResearcher has left. Writer has joined.\n")
	assert.Contains(t, out, "## Assistant\n\nno agent\n")
}

func TestMarkdownLinksAttachmentURLs(t *testing.T) {
	msgs := []transcript.Message{{
		ID:   "a1",
		Role: transcript.RoleAssistant,
		Attachments: []transcript.Attachment{
			{FileID: "f1", Filename: "chart.png", URL: "https://files.example/f1"},
			{FileID: "f2", Filename: "raw.csv"},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, msgs))
	assert.Contains(t, buf.String(), "- [chart.png](https://files.example/f1)\n- raw.csv\n")

	buf.Reset()
	require.NoError(t, HTML(&buf, "", msgs))
	assert.Contains(t, buf.String(), `<a href="https://files.example/f1">chart.png</a>`)
}

func TestMarkdownEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, "Chat <s1>", sample()))
	out := buf.String()

	assert.Contains(t, out, "<title>Chat &lt;s1&gt;</title>")
	assert.Contains(t, out, "<strong>Bold</strong>")
	assert.Contains(t, out, "<h2>Researcher</h2>")
	assert.Contains(t, out, "<pre><code>code\n</code></pre>")
}

func TestHTMLDropsRawHTML(t *testing.T) {
	msgs := []transcript.Message{
		{ID: "a1", Role: transcript.RoleAssistant, Content: "<script>alert(1)</script>"},
	}
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, "", msgs))
	out := buf.String()

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "<title>Conversation</title>")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("Markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	f, err = ParseFormat("html")
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	var md, html bytes.Buffer
	require.NoError(t, Write(&md, FormatMarkdown, "t", sample()))
	require.NoError(t, Write(&html, FormatHTML, "t", sample()))
	assert.True(t, strings.HasPrefix(md.String(), "## You"))
	assert.True(t, strings.HasPrefix(html.String(), "<!DOCTYPE html>"))
	assert.Error(t, Write(&md, Format("pdf"), "t", nil))
}
