package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

func historyCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool invocations from this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, total := a.manager.History(limit)
			if total == 0 {
				fmt.Println("no tool calls recorded")
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %-20s %-25s %-10s %s",
					rec.StartedAt.Format(time.RFC3339),
					rec.ServerName, rec.Tool, rec.Status,
					rec.Duration.Round(time.Millisecond))
				if rec.Status == mcppool.CallFailed {
					line += "  " + rec.Error
				}
				fmt.Println(line)
			}
			if len(records) < total {
				fmt.Printf("showing %d of %d calls\n", len(records), total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show (0 for all)")
	return cmd
}
