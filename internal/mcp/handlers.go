package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/chat"
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/orchestrator"
	"github.com/hpungsan/scout/internal/results"
	"github.com/hpungsan/scout/internal/session"
)

// Service is the part of the backend client used directly by tools.
type Service interface {
	Ping(ctx context.Context) (*backend.PingResponse, error)
	BaseURL() string
}

// Deps are the application components the tools drive.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Builder      *conditions.Builder
	Results      *results.Store
	Chat         *chat.Bridge
	Sessions     *session.Coordinator
	Service      Service
	// HasCredential reports whether a GPSS credential is stored.
	HasCredential func() bool
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps Deps
	cfg  *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config) *Handlers {
	return &Handlers{deps: deps, cfg: cfg}
}

// Request types for each tool

// GenerateKeywordsRequest represents the arguments for patent_generate_keywords.
type GenerateKeywordsRequest struct {
	Description string `json:"description"`
}

// AssignRequest represents the arguments for patent_assign and patent_unassign.
type AssignRequest struct {
	Condition int    `json:"condition"`
	Keyword   string `json:"keyword"`
}

// RowRequest represents the arguments for patent_remove_row.
type RowRequest struct {
	Condition int `json:"condition"`
}

// SetRowRequest represents the arguments for patent_set_row.
type SetRowRequest struct {
	Condition int     `json:"condition"`
	Field     *string `json:"field,omitempty"`
	Logic     *string `json:"logic,omitempty"`
}

// SearchTechRequest represents the arguments for patent_search_tech.
type SearchTechRequest struct {
	Description    string   `json:"description"`
	CustomKeywords []string `json:"custom_keywords,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	MergeKeywords  bool     `json:"merge_keywords,omitempty"`
}

// SearchConditionRequest represents the arguments for patent_search_condition.
type SearchConditionRequest struct {
	backend.ConditionFilters
	MaxResults int `json:"max_results,omitempty"`
}

// PathRequest represents the arguments for patent_analyze_file.
type PathRequest struct {
	Path string `json:"path"`
}

// ResultsRequest represents the arguments for patent_results.
type ResultsRequest struct {
	Mode  string `json:"mode"`
	Limit int    `json:"limit,omitempty"`
}

// ExportRequest represents the arguments for patent_export.
type ExportRequest struct {
	Mode  string `json:"mode"`
	Label string `json:"label,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

// ExportAnalysisRequest represents the arguments for patent_export_analysis.
type ExportAnalysisRequest struct {
	Dir string `json:"dir,omitempty"`
}

// AskRequest represents the arguments for chat_ask.
type AskRequest struct {
	Question  string `json:"question"`
	UseMemory bool   `json:"use_memory,omitempty"`
}

// HistoryRequest represents the arguments for chat_history.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// MemoryStatusRequest represents the arguments for chat_memory_status.
type MemoryStatusRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

// VerifyRequest represents the arguments for config_verify.
type VerifyRequest struct {
	Credential string `json:"credential"`
}

// ConditionsOutput describes the condition assembly.
type ConditionsOutput struct {
	Conditions    []conditions.Condition    `json:"conditions"`
	KeywordGroups []conditions.KeywordGroup `json:"keyword_groups"`
	Logic         string                    `json:"logic"`
	LogicNote     string                    `json:"logic_note,omitempty"`
}

// Handler implementations

// HandleGenerateKeywords handles the patent_generate_keywords tool call.
func (h *Handlers) HandleGenerateKeywords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateKeywordsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.deps.Orchestrator.GenerateKeywords(ctx, input.Description)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConditions handles the patent_conditions tool call.
func (h *Handlers) HandleConditions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.conditionsOutput())
}

// HandleAssign handles the patent_assign tool call.
func (h *Handlers) HandleAssign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AssignRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Keyword) == "" {
		return errorResult(errors.NewInvalidRequest("keyword is required")), nil
	}

	if err := h.deps.Builder.Assign(input.Condition-1, input.Keyword); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.conditionsOutput())
}

// HandleUnassign handles the patent_unassign tool call.
func (h *Handlers) HandleUnassign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AssignRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.deps.Builder.Unassign(input.Condition-1, input.Keyword); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.conditionsOutput())
}

// HandleAddRow handles the patent_add_row tool call.
func (h *Handlers) HandleAddRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.deps.Builder.AddRow()
	return successResult(h.conditionsOutput())
}

// HandleRemoveRow handles the patent_remove_row tool call.
func (h *Handlers) HandleRemoveRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.deps.Builder.RemoveRow(input.Condition - 1); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.conditionsOutput())
}

// HandleSetRow handles the patent_set_row tool call.
func (h *Handlers) HandleSetRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetRowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Field == nil && input.Logic == nil {
		return errorResult(errors.NewInvalidRequest("field or logic is required")), nil
	}

	i := input.Condition - 1
	if input.Field != nil {
		f, err := conditions.ParseField(*input.Field)
		if err != nil {
			return errorResult(err), nil
		}
		if err := h.deps.Builder.SetField(i, f); err != nil {
			return errorResult(err), nil
		}
	}
	if input.Logic != nil {
		l, err := conditions.ParseLogic(*input.Logic)
		if err != nil {
			return errorResult(err), nil
		}
		if err := h.deps.Builder.SetLogic(i, l); err != nil {
			return errorResult(err), nil
		}
	}
	return successResult(h.conditionsOutput())
}

// HandleClearConditions handles the patent_clear_conditions tool call.
func (h *Handlers) HandleClearConditions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.deps.Builder.ClearAll()
	return successResult(h.conditionsOutput())
}

// HandleSearchTech handles the patent_search_tech tool call.
func (h *Handlers) HandleSearchTech(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchTechRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.deps.Orchestrator.RunConfirmedSearch(ctx, orchestrator.TechSearchInput{
		Description:    input.Description,
		CustomKeywords: input.CustomKeywords,
		MaxResults:     input.MaxResults,
		MergeKeywords:  input.MergeKeywords,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearchCondition handles the patent_search_condition tool call.
func (h *Handlers) HandleSearchCondition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchConditionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.deps.Orchestrator.RunConditionSearch(ctx, orchestrator.ConditionQuery{
		Filters:    input.ConditionFilters,
		MaxResults: input.MaxResults,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAnalyzeFile handles the patent_analyze_file tool call.
func (h *Handlers) HandleAnalyzeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.deps.Orchestrator.AnalyzeFile(ctx, input.Path)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleResults handles the patent_results tool call.
func (h *Handlers) HandleResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResultsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	mode, err := results.ParseMode(input.Mode)
	if err != nil {
		return errorResult(err), nil
	}

	records, ok := h.deps.Results.Get(mode)
	if !ok {
		return errorResult(errors.NewNoData(string(mode))), nil
	}
	total := len(records)
	if input.Limit > 0 && input.Limit < total {
		records = records[:input.Limit]
	}
	return successResult(map[string]any{
		"mode":     mode,
		"total":    total,
		"returned": len(records),
		"records":  records,
	})
}

// HandleExport handles the patent_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	mode, err := results.ParseMode(input.Mode)
	if err != nil {
		return errorResult(err), nil
	}

	path, err := h.deps.Orchestrator.Export(mode, results.ExportOptions{Label: input.Label, Dir: input.Dir})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"mode":    mode,
		"path":    path,
		"records": h.deps.Results.Count(mode),
	})
}

// HandleExportAnalysis handles the patent_export_analysis tool call.
func (h *Handlers) HandleExportAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportAnalysisRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	path, err := h.deps.Orchestrator.ExportAnalysis(ctx, input.Dir)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"path": path})
}

// HandleStatus handles the patent_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{
		"session_id":          h.deps.Sessions.Current(),
		"credential_set":      h.hasCredential(),
		"credential_verified": h.deps.Sessions.Verified(),
		"chat_unlocked":       h.deps.Chat.Unlocked(),
		"modes":               h.deps.Orchestrator.Status(),
	})
}

// HandleReset handles the patent_reset tool call.
func (h *Handlers) HandleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.deps.Orchestrator.Reset(ctx)
	return successResult(map[string]any{"reset": true})
}

// HandleAsk handles the chat_ask tool call.
func (h *Handlers) HandleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AskRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	reply, err := h.deps.Chat.Send(ctx, input.Question, input.UseMemory)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(reply)
}

// HandleClearMemory handles the chat_clear_memory tool call.
func (h *Handlers) HandleClearMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.deps.Chat.ClearMemory(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"cleared":          true,
		"transcript_turns": len(h.deps.Chat.Transcript()),
	})
}

// HandleHistory handles the chat_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	entries, err := h.deps.Chat.History(ctx, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"history": entries})
}

// HandleSummary handles the chat_summary tool call.
func (h *Handlers) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := h.deps.Chat.Summary(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(summary)
}

// HandleMemoryStatus handles the chat_memory_status tool call.
func (h *Handlers) HandleMemoryStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MemoryStatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.Refresh {
		status, err := h.deps.Chat.RefreshMemoryStatus(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(map[string]any{"available": true, "memory_status": status})
	}
	status, ok := h.deps.Chat.MemoryStatus()
	return successResult(map[string]any{"available": ok, "memory_status": status})
}

// HandleTranscript handles the chat_transcript tool call.
func (h *Handlers) HandleTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	turns := h.deps.Chat.Transcript()
	return successResult(map[string]any{"turns": turns, "count": len(turns)})
}

// HandleShowConfig handles the config_show tool call.
func (h *Handlers) HandleShowConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{
		"base_url":            h.deps.Service.BaseURL(),
		"credential_set":      h.hasCredential(),
		"credential_verified": h.deps.Sessions.Verified(),
		"max_results":         h.cfg.MaxResults,
		"export_label":        h.cfg.ExportLabel,
		"log_level":           h.cfg.LogLevel,
	})
}

// HandlePing handles the config_ping tool call.
func (h *Handlers) HandlePing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := h.deps.Service.Ping(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"base_url": h.deps.Service.BaseURL(),
		"status":   resp.Status,
		"message":  resp.Message,
	})
}

// HandleVerify handles the config_verify tool call.
func (h *Handlers) HandleVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VerifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.deps.Orchestrator.VerifyCredential(ctx, input.Credential)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

func (h *Handlers) conditionsOutput() ConditionsOutput {
	rows := h.deps.Builder.Rows()
	out := ConditionsOutput{
		Conditions:    rows,
		KeywordGroups: h.deps.Builder.Groups(),
		Logic:         conditions.DisplayLogic(rows),
	}
	if note, ok := conditions.LogicMismatch(rows); ok {
		out.LogicNote = note
	}
	return out
}

func (h *Handlers) hasCredential() bool {
	if h.deps.HasCredential == nil {
		return false
	}
	return h.deps.HasCredential()
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.ScoutError
	if stderrors.As(err, &sErr) {
		message := sErr.Message
		// Keep wrapper context such as "items[2]: " in front of the message.
		if prefix := strings.TrimSuffix(err.Error(), sErr.Error()); prefix != err.Error() {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"kind":    sErr.Kind,
			"message": message,
			"status":  sErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"kind":    errors.KindInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
