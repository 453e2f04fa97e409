package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whuanle/easytouch/internal/daemon"
	"github.com/whuanle/easytouch/internal/ipc"
)

func newBrowserCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browser <command> <id> [args...]",
		Short: "Launch, drive and close automation instances",
		Long: "Run an engine command against instance <id>, for example:\n" +
			"  easytouch browser navigate 1 https://example.com\n" +
			"  easytouch browser text 1 h1",
		Args: usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.proxy(cmd.Context(), args[0], args[1:])
		},
	}
	cmd.Flags().SetInterspersed(false)

	cmd.AddCommand(
		newLaunchCmd(env),
		newCloseCmd(env),
		newCloseAllCmd(env),
		&cobra.Command{
			Use:   "list",
			Short: "List instances and whether their engine still answers",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return env.proxy(cmd.Context(), ipc.CommandList, nil)
			},
		},
	)
	return cmd
}

func newLaunchCmd(env *environment) *cobra.Command {
	var opts []string
	cmd := &cobra.Command{
		Use:   "launch [kind]",
		Short: "Start a new instance (default kind: chromium)",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire := make([]string, 0, len(args)+len(opts))
			wire = append(wire, args...)
			for _, opt := range opts {
				if key, _, ok := strings.Cut(opt, "="); !ok || strings.TrimSpace(key) == "" {
					return usageError{fmt.Errorf("--opt %q: want key=value", opt)}
				}
				wire = append(wire, opt)
			}
			return env.proxy(cmd.Context(), daemon.CommandLaunch, wire)
		},
	}
	cmd.Flags().StringArrayVar(&opts, "opt", nil, "engine option as key=value (repeatable)")
	return cmd
}

func newCloseCmd(env *environment) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close an instance",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire := []string{args[0]}
			if force {
				wire = append(wire, "force")
			}
			return env.proxy(cmd.Context(), daemon.CommandClose, wire)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "kill the engine without a graceful shutdown")
	return cmd
}

func newCloseAllCmd(env *environment) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "closeall",
		Short: "Close every instance",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var wire []string
			if force {
				wire = []string{"force"}
			}
			return env.proxy(cmd.Context(), daemon.CommandCloseAll, wire)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "kill engines without a graceful shutdown")
	return cmd
}
