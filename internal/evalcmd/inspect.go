package evalcmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/radouane/scanner/internal/evaluation"
	"github.com/spf13/cobra"
)

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	var datasetPath string
	var limit int
	var interactive bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect dataset items and check their images",
		Long: `Lists items from a parquet or jsonl dataset and checks that each image file exists.

Useful before a run to catch broken paths without spending provider requests.`,
		Example: `  # Inspect first 5 items interactively
  radouane eval inspect --dataset ./labels/dataset.jsonl --limit 5 --interactive

  # Inspect all items
  radouane eval inspect --dataset ./labels.parquet --limit 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := evaluation.NewLoader(datasetPath, nil).LoadSample(limit)
			if err != nil {
				return err
			}
			return executeInspect(cmd.InOrStdin(), cmd.OutOrStdout(), items, interactive)
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to parquet or jsonl dataset file (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of items to inspect (0 for all)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Pause after each item (press Enter to continue)")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func executeInspect(in io.Reader, out io.Writer, items []evaluation.Item, interactive bool) error {
	reader := bufio.NewReader(in)
	missing := 0
	for i, item := range items {
		var status string
		if info, err := os.Stat(item.ImagePath); err != nil {
			status = "missing"
			missing++
		} else {
			status = fmt.Sprintf("%d bytes", info.Size())
		}

		fmt.Fprintf(out, "[%d] %s\n", i+1, item.ID)
		fmt.Fprintf(out, "  Image:    %s (%s)\n", item.ImagePath, status)
		if item.ProductName != "" {
			fmt.Fprintf(out, "  Product:  %s\n", item.ProductName)
		}
		if item.Category != "" {
			fmt.Fprintf(out, "  Category: %s\n", item.Category)
		}
		if item.ExpectedScore != nil {
			fmt.Fprintf(out, "  Expected: %d\n", *item.ExpectedScore)
		}

		if interactive && i < len(items)-1 {
			fmt.Fprint(out, "Press Enter for next item...")
			if _, err := reader.ReadString('\n'); err != nil {
				break
			}
		}
	}
	fmt.Fprintf(out, "\n%d items, %d missing images\n", len(items), missing)
	return nil
}
