package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/patent"
	"github.com/hpungsan/scout/internal/results"
)

const progressWidth = 30

// terminal renders orchestrator events on stderr. stdout carries the JSON
// result of each command.
type terminal struct {
	w io.Writer
	// live enables the redrawn progress bar; off when stderr is not a TTY.
	live bool

	mu      sync.Mutex
	drawing bool
}

func newTerminal(w io.Writer, live bool) *terminal {
	return &terminal{w: w, live: live}
}

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
	infoColor  = color.New(color.FgCyan)
	noticeColor = color.New(color.FgYellow)
	dimColor   = color.New(color.Faint)
)

func (t *terminal) ShowResults(mode results.Mode, records []patent.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLineLocked()
	if len(records) == 0 {
		noticeColor.Fprintf(t.w, "%s: no matching patents\n", mode)
		return
	}
	okColor.Fprintf(t.w, "%s: %d patents\n", mode, len(records))
}

func (t *terminal) SetProgress(mode results.Mode, pct int) {
	if !t.live {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	filled := pct * progressWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressWidth-filled)
	fmt.Fprintf(t.w, "\r%-9s [%s] %3d%%", mode, bar, pct)
	t.drawing = pct < 100
	if !t.drawing {
		fmt.Fprintln(t.w)
	}
}

func (t *terminal) ShowError(mode results.Mode, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLineLocked()
	errColor.Fprintf(t.w, "%s: %s\n", mode, msg)
}

func (t *terminal) ShowKeywords(groups []conditions.KeywordGroup, rows []conditions.Condition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLineLocked()
	for _, g := range groups {
		infoColor.Fprintf(t.w, "%s", g.Primary)
		if len(g.Synonyms) > 0 {
			dimColor.Fprintf(t.w, "  %s", strings.Join(g.Synonyms, ", "))
		}
		fmt.Fprintln(t.w)
	}
	for _, r := range rows {
		fmt.Fprintf(t.w, "  %d. [%s] %s %s\n", r.Position, r.Field, strings.Join(r.Keywords, " | "), r.Logic)
	}
}

func (t *terminal) ChatUnlocked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLineLocked()
	noticeColor.Fprintln(t.w, "chat is now available: scout chat ask <question>")
}

// endLineLocked terminates a half-drawn progress bar.
func (t *terminal) endLineLocked() {
	if t.drawing {
		fmt.Fprintln(t.w)
		t.drawing = false
	}
}
