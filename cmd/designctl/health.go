package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/designd/internal/http"
)

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check designd server health",
	Long: `Check the health status of the designd HTTP server.

Examples:
  designctl health
  designctl health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	var resp httpserver.HealthResponse
	if err := do(newClient(5*time.Second), req, &resp); err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), resp, func(w io.Writer) {
		fmt.Fprintf(w, "Server Status: %s (%s)\n", resp.Status, resp.Service)
	})
}
