package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

func serversCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage the server registry",
	}
	cmd.AddCommand(serversListCmd(a))
	cmd.AddCommand(serversAddCmd(a))
	cmd.AddCommand(serversUpdateCmd(a))
	cmd.AddCommand(serversRemoveCmd(a))
	return cmd
}

func serversListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered servers and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			views := a.manager.Servers()
			if len(views) == 0 {
				fmt.Println("no servers registered")
				return nil
			}
			for _, view := range views {
				launch := view.Spec.Command
				if view.Spec.Toolset != "" {
					launch = "toolset:" + view.Spec.Toolset
				}
				fmt.Printf("%s  %-20s %-12s %s\n", view.ID, view.Spec.Name, view.Status, launch)
				if view.LastError != "" {
					fmt.Printf("    last error: %s\n", view.LastError)
				}
			}
			return nil
		},
	}
}

func serversAddCmd(a *app) *cobra.Command {
	var (
		name, description, command, category, toolset string
		cmdArgs, envPairs                             []string
		enabled, autoConnect                          bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			id, err := a.manager.AddServer(mcppool.ServerSpec{
				Name:        name,
				Description: description,
				Command:     command,
				Args:        cmdArgs,
				Env:         env,
				Enabled:     enabled,
				AutoConnect: autoConnect,
				Category:    category,
				Toolset:     toolset,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "server name (required)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&command, "command", "", "launch command for a stdio server")
	cmd.Flags().StringArrayVar(&cmdArgs, "arg", nil, "command argument (repeatable)")
	cmd.Flags().StringArrayVar(&envPairs, "env", nil, "KEY=VALUE environment override (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "category label")
	cmd.Flags().StringVar(&toolset, "toolset", "", "built-in toolset name instead of a command")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "include the server in auto-connect")
	cmd.Flags().BoolVar(&autoConnect, "auto-connect", false, "connect automatically with the up command")
	return cmd
}

func serversUpdateCmd(a *app) *cobra.Command {
	var (
		name, description, command, category, toolset string
		cmdArgs, envPairs                             []string
		enabled, autoConnect                          bool
	)
	cmd := &cobra.Command{
		Use:   "update <server>",
		Short: "Update fields of a registered server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			var update mcppool.ServerUpdate
			if cmd.Flags().Changed("name") {
				update.Name = &name
			}
			if cmd.Flags().Changed("description") {
				update.Description = &description
			}
			if cmd.Flags().Changed("command") {
				update.Command = &command
			}
			if cmd.Flags().Changed("arg") {
				update.Args = cmdArgs
			}
			if cmd.Flags().Changed("env") {
				env, err := parseEnvPairs(envPairs)
				if err != nil {
					return err
				}
				update.Env = env
			}
			if cmd.Flags().Changed("category") {
				update.Category = &category
			}
			if cmd.Flags().Changed("toolset") {
				update.Toolset = &toolset
			}
			if cmd.Flags().Changed("enabled") {
				update.Enabled = &enabled
			}
			if cmd.Flags().Changed("auto-connect") {
				update.AutoConnect = &autoConnect
			}
			if !a.manager.UpdateServer(id, update) {
				return fmt.Errorf("no server with id %q", id)
			}
			fmt.Println("updated", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "server name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&command, "command", "", "launch command")
	cmd.Flags().StringArrayVar(&cmdArgs, "arg", nil, "command argument (repeatable, replaces all)")
	cmd.Flags().StringArrayVar(&envPairs, "env", nil, "KEY=VALUE override (repeatable, replaces all)")
	cmd.Flags().StringVar(&category, "category", "", "category label")
	cmd.Flags().StringVar(&toolset, "toolset", "", "built-in toolset name")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "include in auto-connect")
	cmd.Flags().BoolVar(&autoConnect, "auto-connect", false, "connect automatically with the up command")
	return cmd
}

func serversRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <server>",
		Short: "Remove a server, disconnecting it first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveServer(args[0])
			if err != nil {
				return err
			}
			if err := a.manager.RemoveServer(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Println("removed", id)
			return nil
		},
	}
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
