package cli

import (
	"github.com/spf13/cobra"

	"github.com/whuanle/easytouch/internal/daemon"
	"github.com/whuanle/easytouch/internal/ipc"
)

func newDaemonCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect and control the background daemon",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Report whether a daemon is running without starting one",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := env.newProxy()
				if err != nil {
					return err
				}
				st := p.Status(cmd.Context())
				if err := writeResponse(env.stdout, st); err != nil {
					return err
				}
				if !st.Running {
					return exitError(ExitFailure)
				}
				return nil
			},
		},
		proxyCmd(env, "start", "Start the daemon if needed and print its status", daemon.CommandStatus),
		proxyCmd(env, "stop", "Stop the daemon and close every instance", ipc.CommandStop),
		proxyCmd(env, "ping", "Check that the daemon answers, starting it if needed", ipc.CommandPing),
	)
	return cmd
}

// proxyCmd builds an argument-less subcommand that sends command.
func proxyCmd(env *environment, use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.proxy(cmd.Context(), command, nil)
		},
	}
}
