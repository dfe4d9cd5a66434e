// Package cmd contains the command-line entry points for the iris service.
//
// Following the pattern used by kubectl, hugo, and other standard Go CLI
// tools, all application logic lives here, leaving main.go as a minimal
// entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/iris0/iris/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the iris CLI.
// It handles flag parsing and command routing, and is designed to be
// called from main().
func Execute() error {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe(setupLogger())
		case "index":
			return runIndex(setupLogger())
		default:
			return fmt.Errorf("unknown command %q (run \"iris help\")", os.Args[1])
		}
	}

	// Serving is the default behavior.
	return runServe(setupLogger())
}

// setupLogger initializes the structured logger and installs it as the
// process default. Log level is controlled by the DEBUG environment
// variable: set (any value) means debug, unset means info. Logs go to
// stderr so stdout stays usable for command output.
func setupLogger() *slog.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}

	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}

// printVersionInfo displays version information.
func printVersionInfo() error {
	fmt.Printf("iris v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

// printHelp displays the help message.
func printHelp() {
	fmt.Println("iris - question answering over a reference corpus")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  iris                     Start the HTTP API server (default)")
	fmt.Println("  iris serve [addr]        Start the HTTP API server on addr")
	fmt.Println("  iris index <file.jsonl>  Load passages into the corpus")
	fmt.Println("  iris --version           Show version information")
	fmt.Println("  iris --help              Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Gemini API key (default provider)")
	fmt.Println("  OPENAI_API_KEY     OpenAI API key (provider: openai)")
	fmt.Println("  DATABASE_URL       PostgreSQL connection URL")
	fmt.Println("  GOOGLE_CSE_KEY     Google Custom Search key (image routes)")
	fmt.Println("  GOOGLE_CSE_ID      Google Custom Search engine id")
	fmt.Println("  DEBUG              Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration file: ~/.iris/config.yaml or ./config.yaml")
}
