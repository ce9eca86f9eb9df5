package orchestrator

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/export"
	"github.com/hpungsan/scout/internal/patent"
	"github.com/hpungsan/scout/internal/results"
)

// Operation labels, used for metrics and logs.
const (
	opKeywords  = "keywords"
	opTech      = "tech"
	opCondition = "condition"
	opExcel     = "excel"
)

const keywordsPath = backend.Prefix + "/keywords/generate-for-confirmation"

// KeywordsResult is the outcome of GenerateKeywords.
type KeywordsResult struct {
	SessionID  string                    `json:"session_id"`
	Groups     []conditions.KeywordGroup `json:"keyword_groups"`
	Conditions []conditions.Condition    `json:"conditions"`
	Logic      string                    `json:"logic"`
}

// TechSearchInput is a confirmed technical-description search. The
// keywords come from the condition builder.
type TechSearchInput struct {
	Description string
	// CustomKeywords are the user's own terms, sent alongside the
	// builder's keywords.
	CustomKeywords []string
	// MaxResults 0 uses the configured default.
	MaxResults int
	// MergeKeywords sends every keyword as one OR set instead of
	// (custom) AND (generated).
	MergeKeywords bool
}

// ConditionQuery is a condition search.
type ConditionQuery struct {
	Filters    backend.ConditionFilters
	MaxResults int
}

// SearchResult is the outcome of a search or file analysis.
type SearchResult struct {
	Mode       results.Mode    `json:"mode"`
	SessionID  string          `json:"session_id"`
	Records    []patent.Record `json:"records"`
	TotalFound int             `json:"total_found"`
	// Logic is the displayed condition logic of a tech search.
	Logic string `json:"logic,omitempty"`
	// LogicNote explains how the applied logic differs from Logic.
	LogicNote      string   `json:"logic_note,omitempty"`
	TotalCount     int      `json:"total_count,omitempty"`
	ProcessedCount int      `json:"processed_count,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// GenerateKeywords asks the backend for keyword groups, adopts the session id
// it issues and rebuilds the conditions from the groups. It shares the tech
// mode guard with RunConfirmedSearch.
func (o *Orchestrator) GenerateKeywords(ctx context.Context, description string) (*KeywordsResult, error) {
	mode := results.ModeTech
	if err := o.begin(mode, opKeywords); err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if err := checkDescription(description, MaxKeywordDescriptionChars); err != nil {
		return nil, o.reject(mode, opKeywords, err)
	}

	sessionID := o.sessions.Ensure()
	epoch := o.dispatch(mode, 0)

	resp, err := o.api.GenerateKeywords(ctx, backend.KeywordsRequest{
		Description: description,
		SessionID:   sessionID,
	})
	if err != nil {
		return nil, o.fail(mode, opKeywords, err)
	}

	if !hasTerms(resp.Groups) {
		return nil, o.fail(mode, opKeywords, errors.NewProtocol(keywordsPath, http.StatusOK, "no keywords were generated for this description"))
	}

	if err := o.commit(mode, opKeywords, epoch, nil, func() {
		if err := o.builder.AutoGenerate(resp.Groups); err != nil {
			o.logger.Warn("failed to generate conditions", zap.Error(err))
		}
		if resp.SessionID != "" {
			o.sessions.Adopt(resp.SessionID)
		}
	}); err != nil {
		return nil, err
	}

	rows := o.builder.Rows()
	o.renderer.ShowKeywords(resp.Groups, rows)
	o.logger.Info("keywords generated",
		zap.String("session_id", o.sessions.Current()),
		zap.Int("groups", len(resp.Groups)))

	return &KeywordsResult{
		SessionID:  o.sessions.Current(),
		Groups:     resp.Groups,
		Conditions: rows,
		Logic:      conditions.DisplayLogic(rows),
	}, nil
}

// RunConfirmedSearch searches with the keywords currently assembled in the
// condition builder.
func (o *Orchestrator) RunConfirmedSearch(ctx context.Context, in TechSearchInput) (*SearchResult, error) {
	mode := results.ModeTech
	if err := o.begin(mode, opTech); err != nil {
		return nil, err
	}

	key, err := o.credential()
	if err != nil {
		return nil, o.reject(mode, opTech, err)
	}
	description := strings.TrimSpace(in.Description)
	if err := checkDescription(description, MaxSearchDescriptionChars); err != nil {
		return nil, o.reject(mode, opTech, err)
	}
	conds, err := o.builder.Collect()
	if err != nil {
		return nil, o.reject(mode, opTech, err)
	}
	maxResults, err := o.resolveMaxResults(in.MaxResults)
	if err != nil {
		return nil, o.reject(mode, opTech, err)
	}

	var generated []string
	for _, g := range o.builder.Groups() {
		generated = append(generated, g.Terms()...)
	}
	selected := conditions.Flatten(conds)
	custom := customKeywords(in.CustomKeywords, selected)

	sessionID := o.sessions.Ensure()
	req := backend.ConfirmedSearchRequest{
		SessionID:         sessionID,
		Description:       description,
		GeneratedKeywords: conditions.Flatten([]conditions.Condition{{Keywords: generated}}),
		SelectedKeywords:  selected,
		CustomKeywords:    custom,
		UserCode:          key,
		MaxResults:        maxResults,
		UseAndOrLogic:     !in.MergeKeywords,
	}

	epoch := o.dispatch(mode, o.cfg.ProgressDuration(string(mode)))
	resp, err := o.api.ConfirmedSearch(ctx, req)
	if err != nil {
		return nil, o.fail(mode, opTech, err)
	}
	records := nonNilRecords(resp.Results)
	if err := o.commit(mode, opTech, epoch, records, nil); err != nil {
		return nil, err
	}
	o.succeed(mode, records)

	out := &SearchResult{
		Mode:       mode,
		SessionID:  sessionID,
		Records:    records,
		TotalFound: resp.TotalFound,
		Logic:      conditions.DisplayLogic(conds),
	}
	if note, ok := conditions.LogicMismatch(conds); ok {
		out.LogicNote = note
	}
	return out, nil
}

// RunConditionSearch searches by attribute filters.
func (o *Orchestrator) RunConditionSearch(ctx context.Context, q ConditionQuery) (*SearchResult, error) {
	mode := results.ModeCondition
	if err := o.begin(mode, opCondition); err != nil {
		return nil, err
	}

	key, err := o.credential()
	if err != nil {
		return nil, o.reject(mode, opCondition, err)
	}
	filters := q.Filters.Trimmed()
	if err := checkFilters(filters); err != nil {
		return nil, o.reject(mode, opCondition, err)
	}
	maxResults, err := o.resolveMaxResults(q.MaxResults)
	if err != nil {
		return nil, o.reject(mode, opCondition, err)
	}

	sessionID := o.sessions.Ensure()
	req := backend.ConditionSearchRequest{
		SessionID:        sessionID,
		UserCode:         key,
		MaxResults:       maxResults,
		ConditionFilters: filters,
	}

	epoch := o.dispatch(mode, o.cfg.ProgressDuration(string(mode)))
	resp, err := o.api.ConditionSearch(ctx, req)
	if err != nil {
		return nil, o.fail(mode, opCondition, err)
	}
	records := nonNilRecords(resp.Results)
	if err := o.commit(mode, opCondition, epoch, records, nil); err != nil {
		return nil, err
	}
	o.succeed(mode, records)

	return &SearchResult{
		Mode:       mode,
		SessionID:  sessionID,
		Records:    records,
		TotalFound: resp.TotalFound,
	}, nil
}

// AnalyzeFile uploads a spreadsheet for per-patent analysis. The session id
// issued with the analysis is adopted so chat can refer to it.
func (o *Orchestrator) AnalyzeFile(ctx context.Context, path string) (*SearchResult, error) {
	mode := results.ModeExcel
	if err := o.begin(mode, opExcel); err != nil {
		return nil, err
	}

	up, err := export.OpenUpload(path)
	if err != nil {
		return nil, o.reject(mode, opExcel, err)
	}
	defer up.Close()

	epoch := o.dispatch(mode, o.cfg.ProgressDuration(string(mode)))
	resp, err := o.api.UploadAndAnalyze(ctx, up.Name, up.File)
	if err != nil {
		return nil, o.fail(mode, opExcel, err)
	}
	records := nonNilRecords(resp.Results)
	if err := o.commit(mode, opExcel, epoch, records, func() {
		if resp.SessionID != "" {
			o.sessions.Adopt(resp.SessionID)
		}
	}); err != nil {
		return nil, err
	}
	o.succeed(mode, records)

	return &SearchResult{
		Mode:           mode,
		SessionID:      o.sessions.Current(),
		Records:        records,
		TotalFound:     len(records),
		TotalCount:     resp.TotalCount,
		ProcessedCount: resp.ProcessedCount,
		Errors:         resp.Errors,
	}, nil
}

// customKeywords normalizes the user's terms and drops those already selected.
func customKeywords(custom, selected []string) []string {
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		seen[strings.ToLower(s)] = true
	}
	out := []string{}
	for _, k := range conditions.Flatten([]conditions.Condition{{Keywords: custom}}) {
		if seen[strings.ToLower(k)] {
			continue
		}
		out = append(out, k)
	}
	return out
}

func hasTerms(groups []conditions.KeywordGroup) bool {
	for _, g := range groups {
		if len(g.Terms()) > 0 {
			return true
		}
	}
	return false
}

func nonNilRecords(r []patent.Record) []patent.Record {
	if r == nil {
		return []patent.Record{}
	}
	return r
}
