// ABOUTME: Transcript export to standalone HTML.
// ABOUTME: Assistant content renders as markdown; everything else is escaped.

package export

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/helix-console/internal/conversation"
)

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.message { margin: 1.5rem 0; }
.role { font-weight: bold; color: #555; text-transform: uppercase; font-size: 0.8rem; }
.user .body { background: #f0f4ff; padding: 0.5rem 1rem; border-radius: 6px; }
.tool { font-family: monospace; font-size: 0.85rem; background: #f6f6f6; padding: 0.5rem; margin: 0.5rem 0; border-left: 3px solid #999; white-space: pre-wrap; }
.retrieval { font-size: 0.85rem; color: #666; border-left: 3px solid #cb7; padding-left: 0.5rem; margin: 0.5rem 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}
<div class="message {{.RoleClass}}">
<div class="role">{{.Role}}</div>
{{range .Retrievals}}<div class="retrieval">{{.}}</div>{{end}}
{{range .Tools}}<div class="tool">{{.}}</div>{{end}}
<div class="body">{{.Body}}</div>
</div>
{{end}}
</body>
</html>
`))

type messageView struct {
	Role       string
	RoleClass  string
	Retrievals []string
	Tools      []string
	Body       template.HTML
}

// WriteHTML renders a transcript as a standalone HTML page. Assistant
// messages are treated as markdown; user messages are escaped verbatim.
func WriteHTML(w io.Writer, title string, messages []*conversation.Message) error {
	if title == "" {
		title = "Conversation"
	}

	views := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		view := messageView{
			Role:      string(msg.Role),
			RoleClass: string(msg.Role),
		}

		for _, res := range msg.Retrievals {
			view.Retrievals = append(view.Retrievals,
				fmt.Sprintf("%s (%.2f) %s", res.Source, res.Score, res.Text))
		}
		for _, call := range msg.ToolCalls {
			view.Tools = append(view.Tools,
				fmt.Sprintf("$ %s %s\n%s", call.Tool, call.Input, call.Output))
		}

		body, err := renderBody(msg)
		if err != nil {
			return fmt.Errorf("rendering message %s: %w", msg.ID, err)
		}
		view.Body = body
		views = append(views, view)
	}

	data := struct {
		Title    string
		Messages []messageView
	}{Title: title, Messages: views}

	return pageTemplate.Execute(w, data)
}

func renderBody(msg *conversation.Message) (template.HTML, error) {
	if msg.Role != conversation.RoleAssistant {
		escaped := html.EscapeString(msg.Content)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")
		return template.HTML(escaped), nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(msg.Content), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
