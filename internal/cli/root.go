package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/whuanle/easytouch/internal/config"
	"github.com/whuanle/easytouch/internal/envelope"
	"github.com/whuanle/easytouch/internal/launcher"
	"github.com/whuanle/easytouch/internal/version"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1 // the daemon ran the command and it failed
	ExitUsageErr  = 2
	ExitTransport = 3 // the command never ran
)

// Proxy is the client side of the daemon as the CLI uses it.
type Proxy interface {
	Execute(ctx context.Context, command string, args []string) envelope.Transport
	Status(ctx context.Context) launcher.DaemonStatus
}

type environment struct {
	stdout   io.Writer
	stderr   io.Writer
	newProxy func() (Proxy, error)
}

// exitError carries a non-zero exit code out of a command that already
// reported its outcome.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env := &environment{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		newProxy: defaultProxy,
	}
	return run(ctx, env, args)
}

func run(ctx context.Context, env *environment, args []string) int {
	root := newRootCmd(env)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var code exitError
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintf(env.stderr, "easytouch: %v\n", err)

	var uerr usageError
	if errors.As(err, &uerr) {
		return ExitUsageErr
	}
	return ExitFailure
}

func defaultProxy() (Proxy, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if verr := config.Validate(cfg); verr != nil {
		return nil, fmt.Errorf("invalid config: %w", verr)
	}
	return launcher.New(cfg), nil
}

func newRootCmd(env *environment) *cobra.Command {
	root := &cobra.Command{
		Use:   "easytouch",
		Short: "Drive browsers and automation engines through a background daemon",
		Long: "easytouch forwards commands to a per-user background daemon that keeps\n" +
			"automation sessions alive between invocations. The daemon is started on\n" +
			"first use and every proxied command prints one JSON response.",
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)
	root.SetVersionTemplate("easytouch {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newVersionCmd(env),
		newDaemonCmd(env),
		newBrowserCmd(env),
		newExecCmd(env),
		newConfigCmd(env),
	)
	return root
}

func newVersionCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the easytouch version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(env.stdout, "easytouch %s\n", version.String())
		},
	}
}

func newExecCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Send any command to the daemon as-is",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !launcher.ShouldProxy(args[0]) {
				return usageError{fmt.Errorf("%s runs locally: use `easytouch %s`", args[0], args[0])}
			}
			return env.proxy(cmd.Context(), args[0], args[1:])
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// proxy sends one command through the launcher and prints the application
// response.
func (env *environment) proxy(ctx context.Context, command string, args []string) error {
	p, err := env.newProxy()
	if err != nil {
		return err
	}
	tr := p.Execute(ctx, command, args)
	return env.report(tr)
}

func (env *environment) report(tr envelope.Transport) error {
	resp := tr.Unwrap()
	if err := writeResponse(env.stdout, resp); err != nil {
		return err
	}
	switch {
	case !tr.Success:
		return exitError(ExitTransport)
	case !resp.Success:
		return exitError(ExitFailure)
	}
	return nil
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
