package chat

import (
	"bytes"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
)

const transcriptHTML = `<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.turn { border-left: 3px solid #ccc; margin: 1rem 0; padding: 0 1rem; }
.turn.user { border-color: #3b82f6; }
.turn.assistant { border-color: #10b981; }
.turn.system { border-color: #9ca3af; color: #6b7280; }
.meta { font-size: 0.8rem; color: #6b7280; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if not .Turns}}
<p class="empty">No messages yet.</p>
{{- end}}
{{- range .Turns}}
<div class="turn {{.Role}}">
<div class="meta">{{.Role}} · {{formatTime .Timestamp}}{{if .MemoryMode}} · memory{{end}}</div>
{{markdown .Content}}
</div>
{{- end}}
</body>
</html>
`

var transcriptTmpl = template.Must(template.New("transcript").Funcs(template.FuncMap{
	"markdown":   renderMarkdown,
	"formatTime": formatTime,
}).Parse(transcriptHTML))

// RenderHTML writes turns as a standalone HTML page. Turn content is
// treated as markdown; raw HTML inside it is dropped.
func RenderHTML(w io.Writer, title string, turns []Turn) error {
	var buf bytes.Buffer
	data := struct {
		Title string
		Turns []Turn
	}{Title: title, Turns: turns}
	if err := transcriptTmpl.Execute(&buf, data); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a timestamp as "2006-01-02 15:04" UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
