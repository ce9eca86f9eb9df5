package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/scout/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"patent", "chat", "config"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"patent_generate_keywords": {
		def:     generateKeywordsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerateKeywords },
	},
	"patent_conditions": {
		def:     conditionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConditions },
	},
	"patent_assign": {
		def:     assignToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAssign },
	},
	"patent_unassign": {
		def:     unassignToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUnassign },
	},
	"patent_add_row": {
		def:     addRowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAddRow },
	},
	"patent_remove_row": {
		def:     removeRowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRemoveRow },
	},
	"patent_set_row": {
		def:     setRowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetRow },
	},
	"patent_clear_conditions": {
		def:     clearConditionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClearConditions },
	},
	"patent_search_tech": {
		def:     searchTechToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearchTech },
	},
	"patent_search_condition": {
		def:     searchConditionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearchCondition },
	},
	"patent_analyze_file": {
		def:     analyzeFileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalyzeFile },
	},
	"patent_results": {
		def:     resultsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResults },
	},
	"patent_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"patent_export_analysis": {
		def:     exportAnalysisToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExportAnalysis },
	},
	"patent_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"patent_reset": {
		def:     resetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReset },
	},
	"chat_ask": {
		def:     askToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAsk },
	},
	"chat_clear_memory": {
		def:     clearMemoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClearMemory },
	},
	"chat_history": {
		def:     historyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
	"chat_summary": {
		def:     summaryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSummary },
	},
	"chat_memory_status": {
		def:     memoryStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemoryStatus },
	},
	"chat_transcript": {
		def:     transcriptToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTranscript },
	},
	"config_show": {
		def:     showConfigToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShowConfig },
	},
	"config_ping": {
		def:     pingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePing },
	},
	"config_verify": {
		def:     verifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVerify },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "chat_ask" → "chat").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with scout tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(deps Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"scout",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, cfg *config.Config, version string) error {
	s := NewServer(deps, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
