// Package main implements the designctl CLI for the designd HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the designd HTTP server
	serverURL string
	// outputFormat is "text" or "json"
	outputFormat string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "designctl",
	Short: "CLI for the designd similarity assistant",
	Long: `designctl talks to a running designd server.

It uploads product images for similarity analysis, selects a design for
detailed comparison, asks free-text questions and indexes design
manifests into the local design index.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json":
			return nil
		default:
			return fmt.Errorf("--output must be 'text' or 'json', got %q", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "designd server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text|json)")
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(indexCmd)
}

// render writes v as indented JSON when --output json is set, otherwise
// calls text.
func render(w io.Writer, v any, text func(io.Writer)) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	}
	text(w)
	return nil
}
