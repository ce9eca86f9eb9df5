package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = map[string]any{"type": "string"}

var generateKeywordsToolDef = mcp.NewTool("patent_generate_keywords",
	mcp.WithDescription("Generate keyword groups (keyword plus synonyms) from a technical description and rebuild the search conditions from them. Issues a new session id."),
	mcp.WithString("description", mcp.Required(), mcp.Description("Technical description, 50 to 3000 characters")),
)

var conditionsToolDef = mcp.NewTool("patent_conditions",
	mcp.WithDescription("List the condition rows, the keyword groups they came from and the displayed search logic."),
)

var assignToolDef = mcp.NewTool("patent_assign",
	mcp.WithDescription("Add a keyword to a condition row. Assigning a keyword already in the row is a no-op."),
	mcp.WithNumber("condition", mcp.Required(), mcp.Description("Condition row number, starting at 1")),
	mcp.WithString("keyword", mcp.Required(), mcp.Description("Keyword to add")),
)

var unassignToolDef = mcp.NewTool("patent_unassign",
	mcp.WithDescription("Remove a keyword from a condition row."),
	mcp.WithNumber("condition", mcp.Required(), mcp.Description("Condition row number, starting at 1")),
	mcp.WithString("keyword", mcp.Required(), mcp.Description("Keyword to remove")),
)

var addRowToolDef = mcp.NewTool("patent_add_row",
	mcp.WithDescription("Append an empty condition row (ABSTRACT, AND)."),
)

var removeRowToolDef = mcp.NewTool("patent_remove_row",
	mcp.WithDescription("Remove a condition row. The last remaining row is emptied instead."),
	mcp.WithNumber("condition", mcp.Required(), mcp.Description("Condition row number, starting at 1")),
)

var setRowToolDef = mcp.NewTool("patent_set_row",
	mcp.WithDescription("Change the field or logic of a condition row."),
	mcp.WithNumber("condition", mcp.Required(), mcp.Description("Condition row number, starting at 1")),
	mcp.WithString("field", mcp.Enum("TITLE", "ABSTRACT", "CLAIMS"), mcp.Description("Patent section to search")),
	mcp.WithString("logic", mcp.Enum("AND", "OR"), mcp.Description("How this row joins the next one")),
)

var clearConditionsToolDef = mcp.NewTool("patent_clear_conditions",
	mcp.WithDescription("Reset the conditions to a single empty row. Keyword groups are kept."),
)

var searchTechToolDef = mcp.NewTool("patent_search_tech",
	mcp.WithDescription("Run a technical-description search with the keywords in the current conditions. Requires a verified GPSS credential."),
	mcp.WithString("description", mcp.Required(), mcp.Description("Technical description, 50 to 2000 characters")),
	mcp.WithArray("custom_keywords", mcp.Items(stringItems), mcp.Description("Additional user keywords")),
	mcp.WithNumber("max_results", mcp.Description("1 to 10000; defaults to the configured value")),
	mcp.WithBoolean("merge_keywords", mcp.Description("Send every keyword as one OR set instead of (custom) AND (generated)")),
)

var searchConditionToolDef = mcp.NewTool("patent_search_condition",
	mcp.WithDescription("Search by patent attributes. At least one filter is required. Dates are YYYY-MM-DD. Requires a verified GPSS credential."),
	mcp.WithString("applicant", mcp.Description("Applicant")),
	mcp.WithString("inventor", mcp.Description("Inventor")),
	mcp.WithString("patent_number", mcp.Description("Publication or patent number")),
	mcp.WithString("application_number", mcp.Description("Application number")),
	mcp.WithString("ipc_class", mcp.Description("IPC classification")),
	mcp.WithString("title_keyword", mcp.Description("Keyword in the title")),
	mcp.WithString("abstract_keyword", mcp.Description("Keyword in the abstract")),
	mcp.WithString("claims_keyword", mcp.Description("Keyword in the claims")),
	mcp.WithString("application_date_from", mcp.Description("Application date from")),
	mcp.WithString("application_date_to", mcp.Description("Application date to")),
	mcp.WithString("publication_date_from", mcp.Description("Publication date from")),
	mcp.WithString("publication_date_to", mcp.Description("Publication date to")),
	mcp.WithNumber("max_results", mcp.Description("1 to 10000; defaults to the configured value")),
)

var analyzeFileToolDef = mcp.NewTool("patent_analyze_file",
	mcp.WithDescription("Upload a patent spreadsheet (.xlsx or .xls, up to 10 MB) for per-patent feature and effect analysis."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path of the spreadsheet")),
)

var resultsToolDef = mcp.NewTool("patent_results",
	mcp.WithDescription("Return the records of the last successful search of a mode."),
	mcp.WithString("mode", mcp.Required(), mcp.Enum("tech", "condition", "excel"), mcp.Description("Search mode")),
	mcp.WithNumber("limit", mcp.Description("Return at most this many records")),
)

var exportToolDef = mcp.NewTool("patent_export",
	mcp.WithDescription("Write the last results of a mode to an .xlsx file and return its path."),
	mcp.WithString("mode", mcp.Required(), mcp.Enum("tech", "condition", "excel"), mcp.Description("Search mode")),
	mcp.WithString("label", mcp.Description("Filename prefix; defaults to the configured export label")),
	mcp.WithString("dir", mcp.Description("Output directory; defaults to ~/.scout/exports")),
)

var exportAnalysisToolDef = mcp.NewTool("patent_export_analysis",
	mcp.WithDescription("Have the service render the last file analysis as a spreadsheet and save it."),
	mcp.WithString("dir", mcp.Description("Output directory; defaults to ~/.scout/exports")),
)

var statusToolDef = mcp.NewTool("patent_status",
	mcp.WithDescription("Show the session, credential state and per-mode search state."),
)

var resetToolDef = mcp.NewTool("patent_reset",
	mcp.WithDescription("Reset the application: clears session, conditions, results and the chat transcript."),
)

var askToolDef = mcp.NewTool("chat_ask",
	mcp.WithDescription("Ask the assistant about the current results. Available after the first successful search."),
	mcp.WithString("question", mcp.Required(), mcp.Description("Question, up to 1000 characters")),
	mcp.WithBoolean("use_memory", mcp.Description("Condition the answer on earlier turns")),
)

var clearMemoryToolDef = mcp.NewTool("chat_clear_memory",
	mcp.WithDescription("Clear the assistant's conversational memory. The local transcript is kept."),
)

var historyToolDef = mcp.NewTool("chat_history",
	mcp.WithDescription("Return turns stored by the service for the session."),
	mcp.WithNumber("limit", mcp.Description("1 to 50, default 10")),
)

var summaryToolDef = mcp.NewTool("chat_summary",
	mcp.WithDescription("Return the service's summary of the conversation."),
)

var memoryStatusToolDef = mcp.NewTool("chat_memory_status",
	mcp.WithDescription("Return the last memory status snapshot, optionally refreshing it first."),
	mcp.WithBoolean("refresh", mcp.Description("Fetch a fresh snapshot from the service")),
)

var transcriptToolDef = mcp.NewTool("chat_transcript",
	mcp.WithDescription("Return the local chat transcript."),
)

var showConfigToolDef = mcp.NewTool("config_show",
	mcp.WithDescription("Show the service URL, credential state and effective settings."),
)

var pingToolDef = mcp.NewTool("config_ping",
	mcp.WithDescription("Check that the patent service is reachable."),
)

var verifyToolDef = mcp.NewTool("config_verify",
	mcp.WithDescription("Verify a GPSS credential and store it when valid."),
	mcp.WithString("credential", mcp.Required(), mcp.Description("GPSS user code, at least 16 characters")),
)
