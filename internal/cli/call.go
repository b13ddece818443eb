package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

func callCmd(a *app) *cobra.Command {
	var (
		argsJSON string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <server> <tool>",
		Short: "Connect if needed and invoke a tool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			var toolArgs map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			if view, ok := a.manager.Server(id); ok && view.Status != mcppool.StatusConnected {
				if err := a.manager.Connect(cmd.Context(), id); err != nil {
					return err
				}
			}

			res := a.manager.CallTool(cmd.Context(), id, args[1], toolArgs, timeout)
			if !res.Success {
				return fmt.Errorf("tool call failed: %s", res.Error)
			}
			fmt.Println(res.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "completed in %s\n", res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-call timeout (default from settings)")
	return cmd
}
