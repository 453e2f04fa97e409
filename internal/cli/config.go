package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whuanle/easytouch/internal/bootstrap"
	"github.com/whuanle/easytouch/internal/config"
)

func newConfigCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the easytouch config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(*cobra.Command, []string) error {
			path := config.ExampleConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			if err := config.Save(config.Starter()); err != nil {
				return err
			}
			fmt.Fprintf(env.stdout, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	cmd.AddCommand(
		initCmd,
		newAddEngineCmd(env),
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  usageArgs(cobra.NoArgs),
			Run: func(*cobra.Command, []string) {
				fmt.Fprintln(env.stdout, config.ExampleConfigPath())
			},
		},
	)
	return cmd
}

type addEngineArgs struct {
	engineType string
	execPath   string
	headless   bool
	userAgent  string
	flags      []string
	command    string
	args       []string
	env        []string
	url        string
	headers    []string
	overwrite  bool
	skipCheck  bool
}

func newAddEngineCmd(env *environment) *cobra.Command {
	var a addEngineArgs
	cmd := &cobra.Command{
		Use:   "add-engine <kind>",
		Short: "Add or replace an engine kind in the config file",
		Long: "Add an engine kind that `browser launch <kind>` can start, for example:\n" +
			"  easytouch config add-engine docs --command npx --arg -y --arg @acme/docs-mcp\n" +
			"  easytouch config add-engine visible --type chromium --headless=false",
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := strings.TrimSpace(args[0])
			ec, err := a.engineConfig(cmd)
			if err != nil {
				return usageError{err}
			}
			return addEngine(env, kind, ec, a.overwrite, a.skipCheck)
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.engineType, "type", "", "engine type: chromium or mcp (default: mcp when --command or --url is set)")
	f.StringVar(&a.execPath, "exec-path", "", "chromium: browser binary")
	f.BoolVar(&a.headless, "headless", true, "chromium: run without a window")
	f.StringVar(&a.userAgent, "user-agent", "", "chromium: user agent override")
	f.StringArrayVar(&a.flags, "flag", nil, "chromium: extra browser switch (repeatable)")
	f.StringVar(&a.command, "command", "", "mcp: server command (stdio)")
	f.StringArrayVar(&a.args, "arg", nil, "mcp: server argument (repeatable)")
	f.StringArrayVar(&a.env, "env", nil, "mcp: environment variable as KEY=VALUE (repeatable)")
	f.StringVar(&a.url, "url", "", "mcp: streamable HTTP endpoint")
	f.StringArrayVar(&a.headers, "header", nil, "mcp: HTTP header as Name=Value (repeatable)")
	f.BoolVar(&a.overwrite, "overwrite", false, "replace an existing engine with the same kind")
	f.BoolVar(&a.skipCheck, "skip-check", false, "do not verify the browser or runtime is installed")
	return cmd
}

func (a *addEngineArgs) engineConfig(cmd *cobra.Command) (config.EngineConfig, error) {
	ec := config.EngineConfig{
		Type:      a.engineType,
		ExecPath:  a.execPath,
		UserAgent: a.userAgent,
		Flags:     a.flags,
		Command:   a.command,
		Args:      a.args,
		URL:       a.url,
	}
	if ec.Type == "" {
		ec.Type = config.EngineChromium
		if a.command != "" || a.url != "" {
			ec.Type = config.EngineMCP
		}
	}
	if cmd.Flags().Changed("headless") {
		headless := a.headless
		ec.Headless = &headless
	}

	var err error
	if ec.Env, err = keyValues("--env", a.env); err != nil {
		return ec, err
	}
	if ec.Headers, err = keyValues("--header", a.headers); err != nil {
		return ec, err
	}
	return ec, nil
}

func addEngine(env *environment, kind string, ec config.EngineConfig, overwrite, skipCheck bool) error {
	if kind == "" {
		return usageError{fmt.Errorf("missing engine kind")}
	}

	path := config.ExampleConfigPath()
	cfg, err := config.LoadForEdit()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, exists := cfg.Engines[kind]
	if exists && !overwrite {
		return usageError{fmt.Errorf("engine %q already exists; rerun with --overwrite to replace it", kind)}
	}
	if !skipCheck {
		if _, err := bootstrap.CheckEngine(config.ExpandEngineForCurrentEnv(ec)); err != nil {
			return err
		}
	}

	cfg.Engines[kind] = ec
	if err := config.Validate(cfg); err != nil {
		return usageError{fmt.Errorf("invalid resulting config: %w", err)}
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	verb := "Added"
	if exists {
		verb = "Updated"
	}
	fmt.Fprintf(env.stdout, "%s engine %q in %s\n", verb, kind, path)
	return nil
}

func keyValues(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%s %q: want KEY=VALUE", flag, pair)
		}
		out[key] = value
	}
	return out, nil
}
