package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

func connectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <server>",
		Short: "Connect one server and cache its tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			if err := a.manager.Connect(cmd.Context(), id); err != nil {
				return err
			}
			view, _ := a.manager.Server(id)
			fmt.Printf("connected %s (%d tools)\n", view.Spec.Name, len(view.Tools))
			return nil
		},
	}
}

func disconnectCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "disconnect [server]",
		Short: "Disconnect one server, or all with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return a.manager.DisconnectAll(cmd.Context())
			}
			if len(args) != 1 {
				return fmt.Errorf("provide a server or --all")
			}
			id, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			return a.manager.Disconnect(cmd.Context(), id)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "disconnect every server")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pool status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum := a.manager.StatusSummary()
			fmt.Printf("total: %d  connected: %d  connecting: %d  disconnected: %d  errored: %d\n",
				sum.Total, sum.Connected, sum.Connecting, sum.Disconnected, sum.Errored)
			return nil
		},
	}
}

func toolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools across all connected servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := a.manager.ListAllTools()
			if len(refs) == 0 {
				fmt.Println("no tools available, connect a server first")
				return nil
			}
			for _, ref := range refs {
				fmt.Printf("%-20s %-25s %s\n", ref.ServerName, ref.Tool.Name, ref.Tool.Description)
			}
			return nil
		},
	}
}

// upCmd auto-connects eligible servers and then streams pool events until
// interrupted, keeping the sessions alive.
func upCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Auto-connect eligible servers and stream events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, eventType := range []mcppool.EventType{
				mcppool.EventServerConnected,
				mcppool.EventServerDisconnected,
				mcppool.EventServerError,
				mcppool.EventToolCallStart,
				mcppool.EventToolCallComplete,
				mcppool.EventToolCallError,
			} {
				defer a.manager.Subscribe(eventType, func(evt mcppool.Event) {
					a.logger.Info("event", "type", string(evt.Type), "server", evt.ServerID)
				})()
			}

			report := a.manager.AutoConnect(cmd.Context())
			fmt.Printf("connected %d server(s)\n", len(report.Connected))
			for id, msg := range report.Failed {
				fmt.Printf("failed %s: %s\n", id, msg)
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)
			select {
			case <-stop:
			case <-cmd.Context().Done():
			}
			fmt.Println("shutting down")
			return nil
		},
	}
}
