package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/chat"
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/db"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/export"
	"github.com/hpungsan/scout/internal/orchestrator"
	"github.com/hpungsan/scout/internal/results"
	"github.com/hpungsan/scout/internal/web"
)

const defaultServeAddr = "127.0.0.1:8421"

// newCLIApp creates the CLI application with all commands.
// a may be nil when only help or version output is needed.
func newCLIApp(a *app) *cli.App {
	app := &cli.App{
		Name:    "scout",
		Usage:   "Patent search session client",
		Version: Version,
		Commands: []*cli.Command{
			keywordsCmd(a),
			conditionsCmd(a),
			searchCmd(a),
			analyzeCmd(a),
			resultsCmd(a),
			exportCmd(a),
			exportAnalysisCmd(a),
			chatCmd(a),
			statusCmd(a),
			resetCmd(a),
			verifyCmd(a),
			pingCmd(a),
			configCmd(a),
			serveCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// keywordsCmd creates the keywords command.
func keywordsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "keywords",
		Usage:     "Generate keyword groups for a technical description (or read it from stdin)",
		ArgsUsage: "[description]",
		Action: func(c *cli.Context) error {
			description, err := textArg(c)
			if err != nil {
				return outputError(err)
			}

			output, err := a.orch.GenerateKeywords(c.Context, description)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// conditionsCmd creates the conditions command and its editing subcommands.
func conditionsCmd(a *app) *cli.Command {
	show := func(c *cli.Context) error {
		return outputJSON(c, conditionsView(a.builder))
	}
	return &cli.Command{
		Name:   "conditions",
		Usage:  "Show or edit the search conditions",
		Action: show,
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show conditions and keyword groups",
				Action: show,
			},
			{
				Name:      "assign",
				Usage:     "Add a keyword to condition N",
				ArgsUsage: "<N> <keyword>",
				Action: func(c *cli.Context) error {
					i, keyword, err := conditionKeywordArgs(c)
					if err != nil {
						return outputError(err)
					}
					if err := a.builder.Assign(i, keyword); err != nil {
						return outputError(err)
					}
					return show(c)
				},
			},
			{
				Name:      "unassign",
				Usage:     "Remove a keyword from condition N",
				ArgsUsage: "<N> <keyword>",
				Action: func(c *cli.Context) error {
					i, keyword, err := conditionKeywordArgs(c)
					if err != nil {
						return outputError(err)
					}
					if err := a.builder.Unassign(i, keyword); err != nil {
						return outputError(err)
					}
					return show(c)
				},
			},
			{
				Name:  "add",
				Usage: "Append an empty condition",
				Action: func(c *cli.Context) error {
					a.builder.AddRow()
					return show(c)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove condition N",
				ArgsUsage: "<N>",
				Action: func(c *cli.Context) error {
					i, err := parseCondition(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					if err := a.builder.RemoveRow(i); err != nil {
						return outputError(err)
					}
					return show(c)
				},
			},
			{
				Name:      "set",
				Usage:     "Change the field or logic of condition N",
				ArgsUsage: "[--field F] [--logic L] <N>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Usage: "TITLE|ABSTRACT|CLAIMS"},
					&cli.StringFlag{Name: "logic", Aliases: []string{"l"}, Usage: "AND|OR"},
				},
				Action: func(c *cli.Context) error {
					i, err := parseCondition(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					if !c.IsSet("field") && !c.IsSet("logic") {
						return outputError(errors.NewInvalidRequest("--field or --logic is required"))
					}
					if c.IsSet("field") {
						f, err := conditions.ParseField(c.String("field"))
						if err != nil {
							return outputError(err)
						}
						if err := a.builder.SetField(i, f); err != nil {
							return outputError(err)
						}
					}
					if c.IsSet("logic") {
						l, err := conditions.ParseLogic(c.String("logic"))
						if err != nil {
							return outputError(err)
						}
						if err := a.builder.SetLogic(i, l); err != nil {
							return outputError(err)
						}
					}
					return show(c)
				},
			},
			{
				Name:  "clear",
				Usage: "Clear every condition, keeping the keyword groups",
				Action: func(c *cli.Context) error {
					a.builder.ClearAll()
					return show(c)
				},
			},
		},
	}
}

// searchCmd creates the search command with one subcommand per mode.
func searchCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Run a patent search",
		Subcommands: []*cli.Command{
			{
				Name:      "tech",
				Usage:     "Search by technical description using the current conditions",
				ArgsUsage: "[description]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "Custom keyword (repeatable)"},
					&cli.IntFlag{Name: "max-results", Aliases: []string{"n"}, Usage: "Maximum results (default from config)"},
					&cli.BoolFlag{Name: "merge", Usage: "Merge all keywords into one OR set"},
				},
				Action: func(c *cli.Context) error {
					description, err := textArg(c)
					if err != nil {
						return outputError(err)
					}

					output, err := a.orch.RunConfirmedSearch(c.Context, orchestrator.TechSearchInput{
						Description:    description,
						CustomKeywords: c.StringSlice("keyword"),
						MaxResults:     c.Int("max-results"),
						MergeKeywords:  c.Bool("merge"),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, output)
				},
			},
			{
				Name:  "condition",
				Usage: "Search by patent attributes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "applicant", Usage: "Applicant name"},
					&cli.StringFlag{Name: "inventor", Usage: "Inventor name"},
					&cli.StringFlag{Name: "patent-number", Usage: "Publication or patent number"},
					&cli.StringFlag{Name: "application-number", Usage: "Application number"},
					&cli.StringFlag{Name: "ipc", Usage: "IPC classification"},
					&cli.StringFlag{Name: "title", Usage: "Keyword in the title"},
					&cli.StringFlag{Name: "abstract", Usage: "Keyword in the abstract"},
					&cli.StringFlag{Name: "claims", Usage: "Keyword in the claims"},
					&cli.StringFlag{Name: "filed-from", Usage: "Application date from (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "filed-to", Usage: "Application date to (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "published-from", Usage: "Publication date from (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "published-to", Usage: "Publication date to (YYYY-MM-DD)"},
					&cli.IntFlag{Name: "max-results", Aliases: []string{"n"}, Usage: "Maximum results (default from config)"},
				},
				Action: func(c *cli.Context) error {
					output, err := a.orch.RunConditionSearch(c.Context, orchestrator.ConditionQuery{
						Filters:    conditionFilters(c),
						MaxResults: c.Int("max-results"),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, output)
				},
			},
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Upload a spreadsheet of patents for analysis",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}

			output, err := a.orch.AnalyzeFile(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// resultsCmd creates the results command.
func resultsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "results",
		Usage:     "Print the stored results of a mode",
		ArgsUsage: "<tech|condition|excel>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum records to print (0 = all)"},
		},
		Action: func(c *cli.Context) error {
			mode, err := results.ParseMode(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			records, ok := a.results.Get(mode)
			if !ok {
				return outputError(errors.NewNoData(string(mode)))
			}
			total := len(records)
			if limit := c.Int("limit"); limit > 0 && limit < total {
				records = records[:limit]
			}

			return outputJSON(c, map[string]any{
				"mode":     mode,
				"total":    total,
				"returned": len(records),
				"records":  records,
			})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the stored results of a mode to a spreadsheet",
		ArgsUsage: "<tech|condition|excel>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Usage: "Filename label (default from config)"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Output directory (default: ~/.scout/exports)"},
		},
		Action: func(c *cli.Context) error {
			mode, err := results.ParseMode(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			path, err := a.orch.Export(mode, results.ExportOptions{
				Label: c.String("label"),
				Dir:   c.String("dir"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, map[string]any{
				"mode":    mode,
				"path":    path,
				"records": a.results.Count(mode),
			})
		},
	}
}

// exportAnalysisCmd creates the export-analysis command.
func exportAnalysisCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "export-analysis",
		Usage: "Download the server-built spreadsheet for the last file analysis",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Output directory (default: ~/.scout/exports)"},
		},
		Action: func(c *cli.Context) error {
			path, err := a.orch.ExportAnalysis(c.Context, c.String("dir"))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, map[string]any{"path": path})
		},
	}
}

// chatCmd creates the chat command and its subcommands.
func chatCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions about the current session's results",
		Subcommands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Ask a question (or read it from stdin)",
				ArgsUsage: "[question]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "memory", Aliases: []string{"m"}, Usage: "Let the assistant use earlier turns"},
				},
				Action: func(c *cli.Context) error {
					question, err := textArg(c)
					if err != nil {
						return outputError(err)
					}

					reply, err := a.chat.Send(c.Context, question, c.Bool("memory"))
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, reply)
				},
			},
			{
				Name:  "clear",
				Usage: "Clear the assistant's memory for this session",
				Action: func(c *cli.Context) error {
					if err := a.chat.ClearMemory(c.Context); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"cleared": true})
				},
			},
			{
				Name:  "history",
				Usage: "Show the history the assistant keeps",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10, Usage: "Turns to return (1-50)"},
				},
				Action: func(c *cli.Context) error {
					entries, err := a.chat.History(c.Context, c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"history": entries})
				},
			},
			{
				Name:  "summary",
				Usage: "Summarize the conversation",
				Action: func(c *cli.Context) error {
					summary, err := a.chat.Summary(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, summary)
				},
			},
			{
				Name:  "memory",
				Usage: "Show the assistant's memory status",
				Action: func(c *cli.Context) error {
					status, err := a.chat.RefreshMemoryStatus(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, status)
				},
			},
			{
				Name:  "transcript",
				Usage: "Print the local transcript, or write it as HTML",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "html", Usage: "Write an HTML page to this path"},
				},
				Action: func(c *cli.Context) error {
					turns := a.chat.Transcript()
					if !c.IsSet("html") {
						return outputJSON(c, map[string]any{"turns": turns, "count": len(turns)})
					}

					path, err := writeTranscript(a, c.String("html"), turns)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"path": path, "count": len(turns)})
				},
			},
		},
	}
}

// statusCmd creates the status command.
func statusCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show session, credential and per-mode state",
		Action: func(c *cli.Context) error {
			return outputJSON(c, map[string]any{
				"session_id":          a.sessions.Current(),
				"credential_set":      a.hasCredential(),
				"credential_verified": a.sessions.Verified(),
				"chat_unlocked":       a.chat.Unlocked(),
				"modes":               a.orch.Status(),
			})
		},
	}
}

// resetCmd creates the reset command.
func resetCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Clear results, conditions, session and chat",
		Action: func(c *cli.Context) error {
			a.orch.Reset(c.Context)
			return outputJSON(c, map[string]any{"reset": true})
		},
	}
}

// verifyCmd creates the verify command.
func verifyCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a GPSS credential (defaults to the stored one)",
		ArgsUsage: "[credential]",
		Action: func(c *cli.Context) error {
			key := c.Args().First()
			if key == "" {
				stored, err := a.kv.Credential()
				if err != nil {
					return outputError(err)
				}
				if stored == "" {
					return outputError(errors.NewCredentialRequired("no credential given and none stored"))
				}
				key = stored
			}

			output, err := a.orch.VerifyCredential(c.Context, key)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// pingCmd creates the ping command.
func pingCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check the patent service is reachable",
		Action: func(c *cli.Context) error {
			resp, err := a.backend.Ping(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{
				"base_url": a.backend.BaseURL(),
				"status":   resp.Status,
				"message":  resp.Message,
				"version":  resp.Version,
			})
		},
	}
}

// configCmd creates the config command.
func configCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change client settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show effective settings",
				Action: func(c *cli.Context) error {
					return outputJSON(c, map[string]any{
						"base_url":            a.backend.BaseURL(),
						"credential_set":      a.hasCredential(),
						"credential_verified": a.sessions.Verified(),
						"max_results":         a.cfg.MaxResults,
						"export_label":        a.cfg.ExportLabel,
						"exports_dir":         a.exporter.Dir(),
						"log_level":           a.cfg.LogLevel,
					})
				},
			},
			{
				Name:      "set-url",
				Usage:     "Store the patent service base URL (applies from the next command)",
				ArgsUsage: "<url>",
				Action: func(c *cli.Context) error {
					raw := strings.TrimRight(strings.TrimSpace(c.Args().First()), "/")
					if err := checkBaseURL(raw); err != nil {
						return outputError(err)
					}
					if err := a.kv.Set(db.KeyBaseURL, raw); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"base_url": raw})
				},
			},
			{
				Name:      "set-key",
				Usage:     "Store a GPSS credential without verifying it",
				ArgsUsage: "<credential>",
				Action: func(c *cli.Context) error {
					if err := a.orch.SetCredential(c.Args().First()); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"credential_set": true, "credential_verified": false})
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the local dashboard (status, results, transcript, /metrics)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: defaultServeAddr, Usage: "Listen address"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(a.webDeps(), Version, c.String("addr"))
			fmt.Fprintf(os.Stderr, "scout dashboard at http://%s\n", srv.Addr)
			if err := web.Run(srv, a.logger); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.ScoutError
	if stderrors.As(err, &sErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// conditionsView is the JSON shape of the condition assembly.
func conditionsView(b *conditions.Builder) map[string]any {
	rows := b.Rows()
	view := map[string]any{
		"conditions":     rows,
		"keyword_groups": b.Groups(),
		"logic":          conditions.DisplayLogic(rows),
	}
	if note, ok := conditions.LogicMismatch(rows); ok {
		view["logic_note"] = note
	}
	return view
}

// parseCondition converts a 1-based condition number to a row index.
func parseCondition(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("condition must be a positive number, got %q", s))
	}
	return n - 1, nil
}

// conditionKeywordArgs reads "<N> <keyword...>"; a keyword may contain spaces.
func conditionKeywordArgs(c *cli.Context) (int, string, error) {
	if c.NArg() < 2 {
		return 0, "", errors.NewInvalidRequest("usage: <N> <keyword>")
	}
	i, err := parseCondition(c.Args().First())
	if err != nil {
		return 0, "", err
	}
	keyword := strings.TrimSpace(strings.Join(c.Args().Tail(), " "))
	if keyword == "" {
		return 0, "", errors.NewInvalidRequest("keyword is required")
	}
	return i, keyword, nil
}

func conditionFilters(c *cli.Context) backend.ConditionFilters {
	return backend.ConditionFilters{
		Applicant:           c.String("applicant"),
		Inventor:            c.String("inventor"),
		PatentNumber:        c.String("patent-number"),
		ApplicationNumber:   c.String("application-number"),
		IPCClass:            c.String("ipc"),
		TitleKeyword:        c.String("title"),
		AbstractKeyword:     c.String("abstract"),
		ClaimsKeyword:       c.String("claims"),
		ApplicationDateFrom: c.String("filed-from"),
		ApplicationDateTo:   c.String("filed-to"),
		PublicationDateFrom: c.String("published-from"),
		PublicationDateTo:   c.String("published-to"),
	}
}

// textArg returns the positional arguments joined by spaces, or stdin when
// none were given and input is piped.
func textArg(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", nil
	}
	text, err := readStdin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return text, nil
}

// checkBaseURL accepts absolute http(s) URLs.
func checkBaseURL(raw string) error {
	if raw == "" {
		return errors.NewInvalidRequest("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid base URL %q: want http(s)://host[:port]", raw))
	}
	return nil
}

// writeTranscript renders turns as HTML. An empty path or a directory gets
// chat_transcript_<date>.html inside it.
func writeTranscript(a *app, path string, turns []chat.Turn) (string, error) {
	if path == "" {
		path = a.exporter.Dir()
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, fmt.Sprintf("chat_transcript_%s.html", time.Now().Format("2006-01-02")))
	}
	if err := export.ValidatePathExt(path, ".html", a.exporter.Dir(), a.cfg); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := chat.RenderHTML(&buf, "Chat transcript", turns); err != nil {
		return "", errors.NewInternal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return "", errors.NewInternal(err)
	}
	return path, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
