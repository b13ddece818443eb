// Package cli implements the mcpconsole command tree. Commands share one
// app bootstrap that loads configuration, opens the server registry, and
// builds the pool manager before any subcommand runs.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpdemo/mcp-console/internal/config"
	ilog "github.com/mcpdemo/mcp-console/internal/log"
	"github.com/mcpdemo/mcp-console/pkg/auditpg"
	"github.com/mcpdemo/mcp-console/pkg/mcppool"
	"github.com/mcpdemo/mcp-console/pkg/toolsets"
)

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *mcppool.Store
	manager *mcppool.Manager
	audit   *auditpg.Store
}

// Execute runs the root command.
func Execute() error {
	a := &app{}

	root := &cobra.Command{
		Use:           "mcpconsole",
		Short:         "Manage a pool of MCP servers: registry, connections, and tool calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
	}

	root.AddCommand(serversCmd(a))
	root.AddCommand(connectCmd(a))
	root.AddCommand(disconnectCmd(a))
	root.AddCommand(upCmd(a))
	root.AddCommand(statusCmd(a))
	root.AddCommand(toolsCmd(a))
	root.AddCommand(callCmd(a))
	root.AddCommand(historyCmd(a))

	return root.Execute()
}

func (a *app) bootstrap(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.logger = ilog.New(ilog.Config{Level: level, JSON: cfg.LogJSON})

	a.store = mcppool.NewStore(cfg.StorePath)
	specs, stored, err := a.store.Load()
	if err != nil {
		return err
	}

	registry := toolsets.New()
	for _, name := range cfg.Toolsets {
		switch name {
		case toolsets.SystemName:
			toolsets.RegisterSystem(registry)
		default:
			return fmt.Errorf("unknown toolset %q in configuration", name)
		}
	}

	settings := cfg.Settings()
	if stored != (mcppool.Settings{}) {
		settings = stored
	}

	opts := &mcppool.Options{
		Settings: settings,
		Logger:   a.logger,
		Store:    a.store,
		Toolsets: registry,
	}

	if cfg.AuditDSN != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		audit, err := auditpg.Open(openCtx, cfg.AuditDSN)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		if err := audit.EnsureSchema(openCtx); err != nil {
			audit.Close()
			return fmt.Errorf("ensure audit schema: %w", err)
		}
		a.audit = audit
		opts.Audit = audit
	}

	a.manager = mcppool.NewManager(specs, opts)
	return nil
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var err error
	if a.manager != nil {
		err = a.manager.Close(ctx)
	}
	if a.audit != nil {
		a.audit.Close()
	}
	return err
}

// resolveServer accepts a server id or a unique server name.
func (a *app) resolveServer(arg string) (string, error) {
	if _, ok := a.manager.Server(arg); ok {
		return arg, nil
	}
	var matches []string
	for _, view := range a.manager.Servers() {
		if view.Spec.Name == arg {
			matches = append(matches, view.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no server with id or name %q", arg)
	default:
		return "", fmt.Errorf("name %q matches %d servers, use the id", arg, len(matches))
	}
}
