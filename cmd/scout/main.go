package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/mcp"
	"github.com/hpungsan/scout/internal/orchestrator"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"keywords": true, "conditions": true, "search": true, "analyze": true,
	"results": true, "export": true, "export-analysis": true, "chat": true,
	"status": true, "reset": true, "verify": true, "ping": true,
	"config": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// stderrIsTerminal returns true if stderr is a terminal.
func stderrIsTerminal() bool {
	stat, err := os.Stderr.Stat()
	return err == nil && (stat.Mode()&os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	color.New(color.FgCyan).Println(`
  ___  ___ ___  _   _ _____
 / __|/ __/ _ \| | | |_   _|
 \__ \ (_| (_) | |_| | | |
 |___/\___\___/ \___/  |_|`)
	fmt.Println(`
  Patent search session client

  Usage: scout <command> [options]
         scout --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'scout --help' for usage.\n")
		os.Exit(1)
	}

	os.Exit(run())
}

func run() int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		return 1
	}
	baseDir := filepath.Join(homeDir, ".scout")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliMode := isCLIMode()

	// stdout carries the MCP stream in server mode, so nothing is rendered.
	var renderer orchestrator.Renderer = orchestrator.NopRenderer{}
	if cliMode {
		renderer = newTerminal(color.Error, stderrIsTerminal())
	}

	a, err := newApp(ctx, appOptions{BaseDir: baseDir, Config: cfg, Renderer: renderer})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize: %v\n", err)
		return 1
	}
	defer a.Close()

	// CLI mode: known subcommand
	if cliMode {
		if err := newCLIApp(a).RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown disabled_tools: %v\n", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown disabled_types: %v\n", unknown)
	}

	// MCP server mode (default)
	if err := mcp.Run(a.mcpDeps(), cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
