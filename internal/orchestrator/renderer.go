package orchestrator

import (
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/patent"
	"github.com/hpungsan/scout/internal/results"
)

// Renderer is the presentation port. Calls happen on the goroutine running
// the operation, outside any orchestrator lock.
type Renderer interface {
	ShowResults(mode results.Mode, records []patent.Record)
	SetProgress(mode results.Mode, pct int)
	ShowError(mode results.Mode, msg string)
	ShowKeywords(groups []conditions.KeywordGroup, rows []conditions.Condition)
	ChatUnlocked()
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) ShowResults(results.Mode, []patent.Record) {}
func (NopRenderer) SetProgress(results.Mode, int) {}
func (NopRenderer) ShowError(results.Mode, string) {}
func (NopRenderer) ShowKeywords([]conditions.KeywordGroup, []conditions.Condition) {}
func (NopRenderer) ChatUnlocked() {}
