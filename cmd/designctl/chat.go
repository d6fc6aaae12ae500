package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/designd/internal/http"
)

var (
	imageQuery string
	askThread  string
)

// imageCmd uploads a product image for similarity analysis
var imageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Find registered designs similar to a product image",
	Long: `Upload a product image and list the most similar registered designs.

The printed thread id is used with "designctl select" to request a
detailed comparison and report.

Examples:
  designctl image chair.png
  designctl image chair.png --query "등받이 형상을 중심으로 분석해줘"
  designctl image chair.png -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runImage,
}

// selectCmd resumes an image session with the chosen design
var selectCmd = &cobra.Command{
	Use:   "select <thread-id> <index>",
	Short: "Compare against one listed design and write the report",
	Long: `Select a design from a previous "designctl image" listing by its
1-based index. The server compares it to the uploaded image and writes
the freedom-to-operate report.

Examples:
  designctl select 3f1c9f0e-... 2`,
	Args: cobra.ExactArgs(2),
	RunE: runSelect,
}

// askCmd asks a free-text question
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a free-text question about designs",
	Long: `Ask a question. Pass --thread to continue an earlier conversation.

Examples:
  designctl ask "접이식 의자 디자인 등록 사례를 찾아줘"
  designctl ask "그 중 등록된 것만 알려줘" --thread 3f1c9f0e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	imageCmd.Flags().StringVarP(&imageQuery, "query", "q", "", "question to ask about the image")
	askCmd.Flags().StringVarP(&askThread, "thread", "t", "", "thread id of an earlier conversation")
}

func runImage(cmd *cobra.Command, args []string) error {
	var resp httpserver.ImageResponse
	fields := map[string]string{"user_query": imageQuery}
	if err := postImage(newClient(chatTimeout), "/chat/image", args[0], fields, &resp); err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), resp, func(w io.Writer) {
		fmt.Fprintf(w, "Thread: %s\n\n", resp.ThreadID)
		fmt.Fprintf(w, "%s\n\n", resp.InputAnalysis)
		for _, d := range resp.SimilarDesigns {
			local := "no local image"
			if d.ImageBase64 != nil {
				local = "local image"
			}
			fmt.Fprintf(w, "%2d. %s  %s  [%s]  distance=%.4f  (%s)\n",
				d.Index, d.ApplicationNumber, d.ArticleName, d.AdmstStat, d.Distance, local)
		}
		fmt.Fprintf(w, "\n%s\n", resp.Message)
	})
}

func runSelect(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("index must be an integer, got %q", args[1])
	}

	var resp httpserver.SelectResponse
	req := httpserver.SelectRequest{ThreadID: args[0], SelectedIndex: &index}
	if err := postJSON(newClient(chatTimeout), "/chat/select", req, &resp); err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), resp, func(w io.Writer) {
		fmt.Fprintf(w, "Thread: %s\n\n", resp.ThreadID)
		fmt.Fprintf(w, "## Comparison\n\n%s\n\n", resp.DetailedComparison)
		fmt.Fprintf(w, "## Report\n\n%s\n", resp.FinalReport)
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	var resp httpserver.TextResponse
	req := httpserver.TextRequest{TextQuery: args[0], ThreadID: askThread}
	if err := postJSON(newClient(chatTimeout), "/chat/text", req, &resp); err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), resp, func(w io.Writer) {
		fmt.Fprintf(w, "Thread: %s (turn %d)\n\n%s\n", resp.ThreadID, resp.Turn, resp.Answer)
	})
}
