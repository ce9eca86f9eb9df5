package backend

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/patent"
)

// PingResponse is the health check body.
type PingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
}

// KeywordsRequest asks the backend to propose keyword groups.
type KeywordsRequest struct {
	Description string `json:"description"`
	SessionID   string `json:"session_id,omitempty"`
}

// KeywordsResponse carries the proposed groups and the authoritative session id.
type KeywordsResponse struct {
	Success   bool                      `json:"success"`
	SessionID string                    `json:"session_id"`
	Groups    []conditions.KeywordGroup `json:"keywords_with_synonyms"`
	Message   string                    `json:"message,omitempty"`
}

// ConfirmedSearchRequest runs a technical-description search with the
// keywords the user confirmed.
type ConfirmedSearchRequest struct {
	SessionID         string   `json:"session_id"`
	Description       string   `json:"description"`
	GeneratedKeywords []string `json:"generated_keywords"`
	SelectedKeywords  []string `json:"selected_keywords"`
	CustomKeywords    []string `json:"custom_keywords"`
	UserCode          string   `json:"user_code"`
	MaxResults        int      `json:"max_results"`
	UseAndOrLogic     bool     `json:"use_and_or_logic"`
}

// ConditionFilters are the attribute filters of a condition search. Dates
// are YYYY-MM-DD strings; blank fields are omitted.
type ConditionFilters struct {
	Applicant           string `json:"applicant,omitempty"`
	Inventor            string `json:"inventor,omitempty"`
	PatentNumber        string `json:"patent_number,omitempty"`
	ApplicationNumber   string `json:"application_number,omitempty"`
	IPCClass            string `json:"ipc_class,omitempty"`
	TitleKeyword        string `json:"title_keyword,omitempty"`
	AbstractKeyword     string `json:"abstract_keyword,omitempty"`
	ClaimsKeyword       string `json:"claims_keyword,omitempty"`
	ApplicationDateFrom string `json:"application_date_from,omitempty"`
	ApplicationDateTo   string `json:"application_date_to,omitempty"`
	PublicationDateFrom string `json:"publication_date_from,omitempty"`
	PublicationDateTo   string `json:"publication_date_to,omitempty"`
}

// Trimmed returns f with surrounding whitespace removed from every field.
func (f ConditionFilters) Trimmed() ConditionFilters {
	return ConditionFilters{
		Applicant:           strings.TrimSpace(f.Applicant),
		Inventor:            strings.TrimSpace(f.Inventor),
		PatentNumber:        strings.TrimSpace(f.PatentNumber),
		ApplicationNumber:   strings.TrimSpace(f.ApplicationNumber),
		IPCClass:            strings.TrimSpace(f.IPCClass),
		TitleKeyword:        strings.TrimSpace(f.TitleKeyword),
		AbstractKeyword:     strings.TrimSpace(f.AbstractKeyword),
		ClaimsKeyword:       strings.TrimSpace(f.ClaimsKeyword),
		ApplicationDateFrom: strings.TrimSpace(f.ApplicationDateFrom),
		ApplicationDateTo:   strings.TrimSpace(f.ApplicationDateTo),
		PublicationDateFrom: strings.TrimSpace(f.PublicationDateFrom),
		PublicationDateTo:   strings.TrimSpace(f.PublicationDateTo),
	}
}

// Empty reports whether no filter is set.
func (f ConditionFilters) Empty() bool {
	return f.Trimmed() == ConditionFilters{}
}

// ConditionSearchRequest is the condition search body.
type ConditionSearchRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	UserCode   string `json:"user_code"`
	MaxResults int    `json:"max_results"`
	ConditionFilters
}

// SearchResponse is shared by both search endpoints. The confirmed search
// has used both "results" and "search_results" for the record list.
type SearchResponse struct {
	Success    bool
	Results    []patent.Record
	TotalFound int
	Message    string
}

func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	var aux struct {
		Success       bool            `json:"success"`
		Results       []patent.Record `json:"results"`
		SearchResults []patent.Record `json:"search_results"`
		TotalFound    int             `json:"total_found"`
		Message       string          `json:"message"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	records := aux.SearchResults
	if records == nil {
		records = aux.Results
	}
	if records == nil {
		records = []patent.Record{}
	}
	*r = SearchResponse{
		Success:    aux.Success,
		Results:    records,
		TotalFound: aux.TotalFound,
		Message:    aux.Message,
	}
	return nil
}

// VerifyResponse reports whether a GPSS credential is valid.
type VerifyResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AnalysisResponse is the result of uploading a spreadsheet for analysis.
type AnalysisResponse struct {
	Success        bool            `json:"success"`
	TotalCount     int             `json:"total_count"`
	ProcessedCount int             `json:"processed_count"`
	Errors         []string        `json:"errors"`
	Results        []patent.Record `json:"results"`
	SessionID      string          `json:"session_id"`
	Message        string          `json:"message"`
}

// ExportAnalysisRequest asks the backend to render analysis results.
type ExportAnalysisRequest struct {
	Results   []patent.Record `json:"results"`
	SessionID string          `json:"session_id"`
}

// AskRequest is a chat question.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	UseMemory bool   `json:"use_memory"`
}

// AskResponse is the assistant's answer.
type AskResponse struct {
	Success           bool           `json:"success"`
	Answer            string         `json:"answer"`
	ContextInfo       map[string]any `json:"context_info,omitempty"`
	ExecutionTime     float64        `json:"execution_time"`
	ReferencedPatents []any          `json:"referenced_patents,omitempty"`
}

// MemoryStatus is a point-in-time snapshot of the backend's chat memory.
type MemoryStatus struct {
	MemoryCached   bool `json:"memory_cached"`
	MemoryCount    int  `json:"memory_count"`
	HasDBHistory   bool `json:"has_db_history"`
	HasSearchCache bool `json:"has_search_cache"`
}

// MemoryStatusResponse wraps MemoryStatus.
type MemoryStatusResponse struct {
	Success      bool         `json:"success"`
	MemoryStatus MemoryStatus `json:"memory_status"`
	ReadyForQA   bool         `json:"ready_for_qa"`
}

// HistoryEntry is one stored question/answer pair.
type HistoryEntry struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	CreatedAt Text   `json:"created_at"`
}

// HistoryResponse lists stored turns, newest first as the backend returns them.
type HistoryResponse struct {
	Success    bool           `json:"success"`
	History    []HistoryEntry `json:"history"`
	TotalCount int            `json:"total_count"`
}

// ClearMemoryRequest clears the backend's conversational memory.
type ClearMemoryRequest struct {
	SessionID string `json:"session_id"`
}

// ClearMemoryResponse reports whether memory was cleared.
type ClearMemoryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Text decodes a JSON string or number as a string.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*t = Text(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	*t = ""
	return nil
}
