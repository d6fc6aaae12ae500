// Designd is the design similarity daemon.
//
// It serves the chat API over HTTP, or the MCP tools over stdio.
//
// Configuration is read from a YAML file (-config, or DESIGND_CONFIG) with
// DESIGND_* environment overrides. A .env file in the working directory is
// loaded first when present.
//
// Usage:
//
//	# Start the HTTP server
//	designd serve
//
//	# Serve MCP tools over stdio
//	designd mcp
//
//	# Show version information
//	designd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const (
	modeServe = "serve"
	modeMCP   = "mcp"
)

func main() {
	configPath := flag.String("config", os.Getenv("DESIGND_CONFIG"), "path to the YAML config file")
	flag.Parse()
	args := flag.Args()

	mode := modeServe
	if len(args) > 0 {
		switch args[0] {
		case modeServe, modeMCP:
			mode = args[0]
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  designd [-config file] serve   Start the HTTP server (default)\n")
			fmt.Fprintf(os.Stderr, "  designd [-config file] mcp     Serve MCP tools over stdio\n")
			fmt.Fprintf(os.Stderr, "  designd version                Show version information\n")
			os.Exit(1)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, mode, *configPath); err != nil {
		log.Fatalf("designd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("designd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
